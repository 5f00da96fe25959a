package consensus

import (
	"math"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/episode"
)

// CheckSupermajority counts voter directions and gates on both an
// absolute headcount floor and a majority fraction. Fewer than
// MinTraders agreeing voters always fails regardless of percentage.
func CheckSupermajority(votes []*domain.Vote, cfg domain.ConsensusConfig) SupermajorityResult {
	res := SupermajorityResult{Total: len(votes)}
	if res.Total == 0 {
		return res
	}

	for _, v := range votes {
		if v.Direction == domain.DirectionLong {
			res.LongCount++
		} else {
			res.ShortCount++
		}
	}

	res.Direction = domain.DirectionLong
	res.MajorityCount = res.LongCount
	if res.ShortCount > res.LongCount {
		res.Direction = domain.DirectionShort
		res.MajorityCount = res.ShortCount
	}

	res.Pct = float64(res.MajorityCount) / float64(res.Total)
	res.Passed = res.MajorityCount >= cfg.MinTraders && res.Pct >= cfg.MinPct
	return res
}

// CalculateEffectiveK discounts the agreeing voters' headcount by
// pairwise correlation so that copy-trading voters cannot manufacture
// apparent consensus:
//
//	effK = (Σ w_i)² / Σ_i Σ_j w_i·w_j·ρ'(i,j)
//
// where ρ'(i,j) for i≠j blends the pairwise estimate with the
// configured default via CorrelationShrinkage, clamped to [0,1], and
// falls back entirely to the default when no estimate exists. With
// uniform weight 1 and uniform correlation ρ this reduces to
// K / (1 + (K-1)ρ). A single voter is always effK = 1.
func CalculateEffectiveK(agreeing []*domain.Vote, corr domain.CorrelationMatrix, cfg domain.ConsensusConfig) EffectiveKResult {
	res := EffectiveKResult{RawK: len(agreeing)}
	if res.RawK == 0 {
		return res
	}
	if res.RawK == 1 {
		res.EffectiveK = 1
		res.Passed = res.EffectiveK >= cfg.MinEffectiveK
		return res
	}

	var sumW, denom float64
	for _, v := range agreeing {
		sumW += v.Weight
	}
	for i, vi := range agreeing {
		for j, vj := range agreeing {
			rho := 1.0
			if i != j {
				rho = pairwiseCorrelation(vi.Address, vj.Address, corr, cfg)
			}
			denom += vi.Weight * vj.Weight * rho
		}
	}

	if denom > 0 {
		res.EffectiveK = (sumW * sumW) / denom
	}
	res.Passed = res.EffectiveK >= cfg.MinEffectiveK
	return res
}

// pairwiseCorrelation resolves ρ'(i,j) for distinct addresses.
func pairwiseCorrelation(a, b string, corr domain.CorrelationMatrix, cfg domain.ConsensusConfig) float64 {
	rho, ok := corr.Lookup(a, b)
	if !ok {
		return clamp01(cfg.DefaultCorrelation)
	}
	blended := cfg.CorrelationShrinkage*rho + (1-cfg.CorrelationShrinkage)*cfg.DefaultCorrelation
	return clamp01(blended)
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// CheckFreshness gates on the age of the oldest vote relative to the
// evaluation window. The boundary is inclusive: a vote aged exactly
// window*maxStalenessFactor still passes.
func CheckFreshness(votes []*domain.Vote, now, windowMs int64, cfg domain.ConsensusConfig) FreshnessResult {
	res := FreshnessResult{}
	if len(votes) == 0 || windowMs <= 0 {
		return res
	}

	oldest := votes[0].Timestamp
	for _, v := range votes[1:] {
		if v.Timestamp < oldest {
			oldest = v.Timestamp
		}
	}

	res.OldestTimestamp = oldest
	res.Staleness = float64(now-oldest) / float64(windowMs)
	res.Passed = res.Staleness <= cfg.MaxStalenessFactor
	return res
}

// CheckPriceDrift gates on how far the current mid has moved from the
// agreeing votes' median entry price, expressed in R-units: a 40 bps
// move against a 100 bps stop is 0.4R.
func CheckPriceDrift(agreeing []*domain.Vote, currentMid, stopBps float64, cfg domain.ConsensusConfig) PriceDriftResult {
	res := PriceDriftResult{MedianPrice: MedianPrice(agreeing)}
	if len(agreeing) == 0 || res.MedianPrice == 0 {
		return res
	}

	res.DriftBps = math.Abs(currentMid-res.MedianPrice) / res.MedianPrice * 10000
	res.DriftR = episode.BpsToR(res.DriftBps, stopBps)
	res.Passed = res.DriftR <= cfg.MaxPriceDriftR
	return res
}
