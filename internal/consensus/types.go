package consensus

// SupermajorityResult is the outcome of the headcount gate.
type SupermajorityResult struct {
	Passed        bool
	Total         int // all voters
	LongCount     int
	ShortCount    int
	MajorityCount int     // max(longCount, shortCount)
	Direction     string  // majority direction, empty when no votes
	Pct           float64 // majorityCount / total, 0 when no votes
}

// EffectiveKResult is the outcome of the correlation-discount gate.
type EffectiveKResult struct {
	Passed     bool
	EffectiveK float64 // correlation-discounted count of agreeing voters
	RawK       int     // agreeing voter headcount before discounting
}

// FreshnessResult is the outcome of the staleness gate.
type FreshnessResult struct {
	Passed          bool
	Staleness       float64 // (now - oldest vote) / window
	OldestTimestamp int64   // ms, 0 when no votes
}

// PriceDriftResult is the outcome of the price-drift gate.
type PriceDriftResult struct {
	Passed      bool
	MedianPrice float64 // median price of the agreeing votes
	DriftBps    float64 // |mid - median| / median in basis points
	DriftR      float64 // driftBps normalized by the policy stop
}

// EVResult is the outcome of the expected-value gate.
type EVResult struct {
	Passed   bool
	PWin     float64 // shrunk win probability estimate
	EVGrossR float64 // pWin*avgWinR - (1-pWin)*avgLossR
	EVCostR  float64 // (feesBps+slipBps) / stopBps
	EVNetR   float64 // evGrossR - evCostR
}

// ConsensusResult aggregates all five gates. Passes is the logical AND
// of the gates; every gate is fully computed even when an earlier one
// fails, so callers always get complete diagnostics.
type ConsensusResult struct {
	Passes    bool
	Direction string // majority direction

	Supermajority SupermajorityResult
	EffectiveK    EffectiveKResult
	Freshness     FreshnessResult
	PriceDrift    PriceDriftResult
	EV            EVResult

	EvaluatedAt int64 // the injected "now" (ms)
}
