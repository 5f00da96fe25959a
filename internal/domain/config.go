package domain

// ConsensusConfig holds the five-gate policy thresholds. Every
// evaluation call receives an explicit config value; there are no
// global mutable defaults.
type ConsensusConfig struct {
	// Supermajority gate
	MinTraders int     // minimum agreeing voters
	MinPct     float64 // minimum majority fraction of all voters

	// Effective-K gate
	MinEffectiveK        float64 // minimum correlation-discounted voter count
	DefaultCorrelation   float64 // pairwise correlation assumed when no estimate exists
	CorrelationShrinkage float64 // blend of estimate vs default, 1 = use estimate as-is

	// Freshness gate
	MaxStalenessFactor float64 // max (now - oldest vote) / window, boundary inclusive

	// Price drift gate
	MaxPriceDriftR float64 // max drift from vote median, in R-units

	// Expected value gate
	EVMinR   float64 // minimum net expected value in R-units
	AvgWinR  float64 // assumed average winning outcome in R
	AvgLossR float64 // assumed average losing outcome in R (positive magnitude)
	FeesBps  float64 // round-trip fee cost
	SlipBps  float64 // assumed slippage cost
}

// DefaultConsensusConfig returns the production policy defaults.
func DefaultConsensusConfig() ConsensusConfig {
	return ConsensusConfig{
		MinTraders:           3,
		MinPct:               0.7,
		MinEffectiveK:        2.0,
		DefaultCorrelation:   0.3,
		CorrelationShrinkage: 1.0,
		MaxStalenessFactor:   1.0,
		MaxPriceDriftR:       0.25,
		EVMinR:               0.05,
		AvgWinR:              1.0,
		AvgLossR:             1.0,
		FeesBps:              7,
		SlipBps:              10,
	}
}

// EpisodeConfig holds episode reconstruction policy. The stop is a
// policy stop used for risk normalization, not the trader's own stop.
type EpisodeConfig struct {
	DefaultStopFraction float64 // risk per episode as fraction of entry notional
	RMin                float64 // winsorization lower bound for result R
	RMax                float64 // winsorization upper bound for result R
	TimeoutHours        float64 // age after which a stale open episode is flagged
}

// DefaultEpisodeConfig returns the production episode defaults.
func DefaultEpisodeConfig() EpisodeConfig {
	return EpisodeConfig{
		DefaultStopFraction: 0.01,
		RMin:                -2.0,
		RMax:                2.0,
		TimeoutHours:        48,
	}
}
