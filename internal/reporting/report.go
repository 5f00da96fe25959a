package reporting

import "time"

// Report represents the consensus research report structure.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	AssetCount  int
	TraderCount int

	// Data Summary
	DataSummary DataSummary

	// Data Quality (sufficiency checks + episode integrity)
	DataQuality DataQualitySection

	// Trader Statistics (sorted by address)
	TraderStats []TraderStatRow

	// Gate outcomes per asset for the current evaluation window
	GateOutcomes []GateOutcomeRow

	// Emitted tickets (sorted by created_at)
	Tickets []TicketRow
}

// DataQualitySection contains data sufficiency checks and integrity errors.
type DataQualitySection struct {
	SufficiencyChecks []SufficiencyCheckRow
	IntegrityErrors   []string
	AllChecksPassed   bool
}

// SufficiencyCheckRow represents one sufficiency criterion.
type SufficiencyCheckRow struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// DataSummary contains data description.
type DataSummary struct {
	TotalFills     int
	TotalTraders   int
	TotalAssets    int
	TotalEpisodes  int
	OpenEpisodes   int
	ClosedEpisodes int
	TotalTickets   int
	DateRangeStart int64 // Unix ms
	DateRangeEnd   int64 // Unix ms
}

// TraderStatRow represents one row in the trader statistics table.
type TraderStatRow struct {
	Address              string
	TotalEpisodes        int
	Wins                 int
	Losses               int
	WinRate              float64 // episode-level
	RMean                float64
	RMedian              float64
	RP10                 float64
	RP90                 float64
	MaxDrawdownR         float64
	MaxConsecutiveLosses int
}

// GateOutcomeRow represents one asset's gate outcome in the current
// evaluation window.
type GateOutcomeRow struct {
	Asset       string
	Voters      int
	Agree       int
	Direction   string
	EffectiveK  float64
	Staleness   float64
	DriftR      float64
	EVNetR      float64
	Passes      bool
	FailedGates string // comma-joined gate names, empty when passing
}

// TicketRow lists emitted consensus tickets.
type TicketRow struct {
	TicketID   string
	Asset      string
	Direction  string
	NAgree     int
	NTraders   int
	EffectiveK float64
	CreatedAt  int64 // Unix ms
}
