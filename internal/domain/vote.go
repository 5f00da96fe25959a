package domain

// Direction of a vote or an episode.
const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// Vote is one trader's net directional stance within an evaluation
// window, collapsed from possibly many fills. At most one vote per
// trader per evaluation.
type Vote struct {
	Address   string  // trader address, lowercased
	Direction string  // "long" | "short"
	Weight    float64 // [0,1], net size relative to the weight cap
	Price     float64 // volume-weighted average price across the trader's fills
	Timestamp int64   // latest fill timestamp in the window (ms)
}
