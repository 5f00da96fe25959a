// Package consensus decides, per asset, whether enough independent,
// fresh, statistically-profitable agreement exists among tracked
// traders to justify a directional signal. All functions are pure with
// respect to their explicit arguments and safe for concurrent per-asset
// invocation as long as each call's inputs are immutable snapshots.
package consensus

import "trader-consensus-lab/internal/domain"

// CheckConsensus runs the five policy gates over one asset's votes at
// one instant. Gates are reported in fixed order (supermajority →
// effectiveK → freshness → priceDrift → ev) but are logically
// independent: none short-circuits another's computation, so an empty
// or failing vote set still yields a fully populated result with
// Passes=false rather than an error.
func CheckConsensus(
	votes []*domain.Vote,
	currentMid float64,
	windowMs int64,
	stopBps float64,
	corr domain.CorrelationMatrix,
	winRates domain.WinRateTable,
	now int64,
	cfg domain.ConsensusConfig,
) *ConsensusResult {
	super := CheckSupermajority(votes, cfg)
	agree := agreeingVotes(votes, super.Direction)

	effK := CalculateEffectiveK(agree, corr, cfg)
	fresh := CheckFreshness(votes, now, windowMs, cfg)
	drift := CheckPriceDrift(agree, currentMid, stopBps, cfg)
	ev := CalculateEV(EstimateWinProbability(agree, winRates), stopBps, cfg)

	return &ConsensusResult{
		Passes:        super.Passed && effK.Passed && fresh.Passed && drift.Passed && ev.Passed,
		Direction:     super.Direction,
		Supermajority: super,
		EffectiveK:    effK,
		Freshness:     fresh,
		PriceDrift:    drift,
		EV:            ev,
		EvaluatedAt:   now,
	}
}
