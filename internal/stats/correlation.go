package stats

import "trader-consensus-lab/internal/domain"

// DefaultMinOverlap is the minimum number of shared evaluation ticks
// before a pairwise correlation estimate is emitted; pairs with less
// overlap fall back to the configured default at evaluation time.
const DefaultMinOverlap = 5

// EstimateCorrelations builds a pairwise correlation matrix from
// historical evaluation ticks. Each tick is the set of votes observed
// for one asset at one instant. For every pair of traders that voted
// in at least minOverlap common ticks, the directional agreement rate
// is mapped to [-1, 1]:
//
//	ρ = 2·(agreeing ticks / common ticks) − 1
//
// so always-agreeing pairs estimate 1 and always-opposing pairs -1.
func EstimateCorrelations(ticks [][]*domain.Vote, minOverlap int) domain.CorrelationMatrix {
	if minOverlap <= 0 {
		minOverlap = DefaultMinOverlap
	}

	type pairCount struct {
		common int
		agree  int
	}
	counts := make(map[domain.PairKey]*pairCount)

	for _, votes := range ticks {
		for i, vi := range votes {
			for _, vj := range votes[i+1:] {
				if vi.Address == vj.Address {
					continue
				}
				key := domain.NewPairKey(vi.Address, vj.Address)
				pc, ok := counts[key]
				if !ok {
					pc = &pairCount{}
					counts[key] = pc
				}
				pc.common++
				if vi.Direction == vj.Direction {
					pc.agree++
				}
			}
		}
	}

	matrix := make(domain.CorrelationMatrix)
	for key, pc := range counts {
		if pc.common < minOverlap {
			continue
		}
		matrix[key] = 2*float64(pc.agree)/float64(pc.common) - 1
	}
	return matrix
}
