// Package stats turns closed episodes into per-trader performance
// statistics and pairwise correlation estimates consumed by the
// consensus evaluator's profitability and effective-K gates.
package stats

import (
	"math"
	"sort"

	"trader-consensus-lab/internal/domain"
)

// ComputeWinRates builds the trader win-rate table from episodes.
// Only closed episodes count; a win is a winsorized result above zero.
func ComputeWinRates(episodes []*domain.Episode) domain.WinRateTable {
	wins := make(map[string]int)
	totals := make(map[string]int)
	for _, ep := range episodes {
		if ep.Status != domain.EpisodeStatusClosed {
			continue
		}
		totals[ep.Address]++
		if ep.ResultR > 0 {
			wins[ep.Address]++
		}
	}

	table := make(domain.WinRateTable, len(totals))
	for addr, total := range totals {
		table[addr] = domain.WinRateStat{
			WinRate: float64(wins[addr]) / float64(total),
			Samples: total,
		}
	}
	return table
}

// ComputeTraderSummary calculates all per-trader metrics from that
// trader's episodes. Episodes are sorted by ClosedAt ASC, EpisodeID
// ASC before computing order-dependent metrics (MaxDrawdownR,
// MaxConsecutiveLosses). Open episodes are ignored.
func ComputeTraderSummary(address string, episodes []*domain.Episode) *domain.TraderSummary {
	var closed []*domain.Episode
	for _, ep := range episodes {
		if ep.Address == address && ep.Status == domain.EpisodeStatusClosed {
			closed = append(closed, ep)
		}
	}

	n := len(closed)
	if n == 0 {
		return &domain.TraderSummary{Address: address}
	}

	sort.Slice(closed, func(i, j int) bool {
		if closed[i].ClosedAt != closed[j].ClosedAt {
			return closed[i].ClosedAt < closed[j].ClosedAt
		}
		return closed[i].EpisodeID < closed[j].EpisodeID
	})

	wins := 0
	var totalFees float64
	results := make([]float64, n)
	for i, ep := range closed {
		results[i] = ep.ResultR
		totalFees += ep.TotalFees
		if ep.ResultR > 0 {
			wins++
		}
	}

	sortedResults := make([]float64, n)
	copy(sortedResults, results)
	sort.Float64s(sortedResults)

	mean := computeMean(results)

	return &domain.TraderSummary{
		Address:       address,
		TotalEpisodes: n,
		Wins:          wins,
		Losses:        n - wins,
		WinRate:       float64(wins) / float64(n),

		RMean:   mean,
		RMedian: computePercentile(sortedResults, 0.50),
		RP10:    computePercentile(sortedResults, 0.10),
		RP90:    computePercentile(sortedResults, 0.90),
		RMin:    sortedResults[0],
		RMax:    sortedResults[n-1],
		RStddev: computeStddev(results, mean),

		MaxDrawdownR:         computeMaxDrawdown(results),
		MaxConsecutiveLosses: computeMaxConsecutiveLosses(results),

		TotalFees: totalFees,
	}
}

// computeMean calculates arithmetic mean of results.
func computeMean(results []float64) float64 {
	if len(results) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range results {
		sum += r
	}
	return sum / float64(len(results))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(results []float64, mean float64) float64 {
	n := len(results)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, r := range results {
		diff := r - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC. p is percentile (0.10 = 10th).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown calculates worst peak-to-trough on cumulative R.
// Results must be in chronological order.
func computeMaxDrawdown(results []float64) float64 {
	if len(results) == 0 {
		return 0
	}

	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, r := range results {
		cumulative += r
		if cumulative > peak {
			peak = cumulative
		}
		drawdown := peak - cumulative
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds the longest streak of R <= 0.
// Results must be in chronological order.
func computeMaxConsecutiveLosses(results []float64) int {
	maxStreak := 0
	currentStreak := 0

	for _, r := range results {
		if r <= 0 {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
