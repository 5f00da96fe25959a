package domain

// Fill represents one trade execution reported by the venue for a
// tracked trader. Corresponds to fills table in PostgreSQL.
type Fill struct {
	FillID      string   // venue-assigned fill identifier
	Address     string   // trader account address, lowercased
	Asset       string   // tradable asset symbol
	Side        string   // "buy" | "sell"
	Size        float64  // base units, always > 0
	Price       float64  // execution price, always > 0
	Timestamp   int64    // Unix timestamp in milliseconds
	RealizedPnl *float64 // venue-reported realized PnL for closing fills (nullable)
	Fees        float64  // fees charged on this fill
	CreatedAt   int64    // record creation timestamp (ms)
}

// Fill side constants
const (
	FillSideBuy  = "buy"
	FillSideSell = "sell"
)

// SignedSize returns size with buy positive and sell negative.
func (f *Fill) SignedSize() float64 {
	if f.Side == FillSideSell {
		return -f.Size
	}
	return f.Size
}
