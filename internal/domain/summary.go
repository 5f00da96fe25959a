package domain

// TraderSummary represents per-trader aggregate performance across
// closed episodes, in R-units.
type TraderSummary struct {
	Address string

	// Counts
	TotalEpisodes int
	Wins          int
	Losses        int
	WinRate       float64 // wins / total (episode-level)

	// R distribution
	RMean   float64
	RMedian float64
	RP10    float64 // 10th percentile
	RP90    float64 // 90th percentile
	RMin    float64
	RMax    float64
	RStddev float64

	// Streaks
	MaxDrawdownR         float64 // worst peak-to-trough on cumulative R
	MaxConsecutiveLosses int

	TotalFees float64
}
