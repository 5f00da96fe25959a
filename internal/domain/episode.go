package domain

// Episode represents one continuous directional exposure for one
// (trader, asset) pair, from open to close or still open.
// Corresponds to episodes table in PostgreSQL.
type Episode struct {
	EpisodeID string // deterministic hash
	Address   string // trader address, lowercased
	Asset     string // tradable asset symbol

	Direction string // "long" | "short"
	Status    string // "open" | "closed"

	// Entry
	OpenedAt      int64   // first entry fill timestamp (ms)
	EntrySize     float64 // total entered base units
	EntryVwap     float64 // volume-weighted average entry price
	EntryNotional float64 // entry_vwap * entry_size
	RiskAmount    float64 // entry_notional * default_stop_fraction, fixed at entry
	StopBps       float64 // default_stop_fraction * 10000, fixed at entry
	EntryFills    []string

	// Exit
	ClosedAt     int64 // last exit fill timestamp (ms), 0 while open
	ExitVwap     float64
	ExitFills    []string
	ClosedReason string // "full_close" | "direction_flip", empty while open

	// Outcome
	RealizedPnl float64 // venue-reported PnL summed across exit fills
	ResultR     float64 // winsorized realized_pnl / risk_amount
	TotalFees   float64
}

// Episode status constants
const (
	EpisodeStatusOpen   = "open"
	EpisodeStatusClosed = "closed"
)

// Episode close reason codes
const (
	ClosedReasonFullClose     = "full_close"
	ClosedReasonDirectionFlip = "direction_flip"
)
