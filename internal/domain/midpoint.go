package domain

// MidPoint is one observation of an asset's mid price, used to replay
// historical consensus decisions against the price at decision time.
type MidPoint struct {
	Asset       string  // tradable asset symbol
	TimestampMs int64   // observation time (ms)
	Mid         float64 // (best bid + best ask) / 2
}
