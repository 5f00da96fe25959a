package consensus

import (
	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/episode"
)

// winRatePriorSamples is the pseudo-sample strength of the neutral 0.5
// prior in the pooled win-probability estimate. Traders with more
// historical samples pull the estimate further from 0.5.
const winRatePriorSamples = 20.0

// EstimateWinProbability pools the agreeing voters' historical win
// rates with Bayesian shrinkage toward 0.5:
//
//	pWin = (Σ winRate_i·samples_i + 0.5·prior) / (Σ samples_i + prior)
//
// Voters absent from the table contribute nothing; with no historical
// data at all the estimate is exactly 0.5.
func EstimateWinProbability(agreeing []*domain.Vote, winRates domain.WinRateTable) float64 {
	num := 0.5 * winRatePriorSamples
	denom := winRatePriorSamples
	for _, v := range agreeing {
		stat, ok := winRates[v.Address]
		if !ok || stat.Samples <= 0 {
			continue
		}
		num += stat.WinRate * float64(stat.Samples)
		denom += float64(stat.Samples)
	}
	return num / denom
}

// CalculateEV computes the expected-value gate. Costs are expressed in
// stop-normalized R-units, so identical absolute costs bite harder
// against tighter stops (17 bps against a 20 bps stop is 0.85R).
func CalculateEV(pWin, stopBps float64, cfg domain.ConsensusConfig) EVResult {
	res := EVResult{PWin: pWin}
	res.EVGrossR = pWin*cfg.AvgWinR - (1-pWin)*cfg.AvgLossR
	res.EVCostR = episode.BpsToR(cfg.FeesBps+cfg.SlipBps, stopBps)
	res.EVNetR = res.EVGrossR - res.EVCostR
	res.Passed = res.EVNetR >= cfg.EVMinR
	return res
}
