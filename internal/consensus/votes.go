package consensus

import (
	"math"
	"sort"
	"strings"

	"trader-consensus-lab/internal/domain"
)

// netEpsilon is the threshold below which a trader's net size change
// within the window counts as flat (self-cancelling fills).
const netEpsilon = 1e-9

// CollapseVotes reduces one trader's fills within an evaluation window
// to at most one net directional vote. Net signed size determines
// direction, weight is |net| relative to weightCap capped at 1, price
// is the VWAP across all of the trader's fills, and the timestamp is
// the latest fill timestamp. Returns false when the trader nets out
// flat. Works on sums, so fill order does not matter.
func CollapseVotes(address string, fills []*domain.Fill, weightCap float64) (domain.Vote, bool) {
	if len(fills) == 0 {
		return domain.Vote{}, false
	}

	var netSize, totalSize, notional float64
	var latest int64
	for _, f := range fills {
		netSize += f.SignedSize()
		totalSize += f.Size
		notional += f.Price * f.Size
		if f.Timestamp > latest {
			latest = f.Timestamp
		}
	}

	if math.Abs(netSize) < netEpsilon {
		return domain.Vote{}, false
	}

	direction := domain.DirectionLong
	if netSize < 0 {
		direction = domain.DirectionShort
	}

	weight := 1.0
	if weightCap > 0 {
		weight = math.Min(math.Abs(netSize)/weightCap, 1.0)
	}

	vwap := 0.0
	if totalSize > 0 {
		vwap = notional / totalSize
	}

	return domain.Vote{
		Address:   strings.ToLower(address),
		Direction: direction,
		Weight:    weight,
		Price:     vwap,
		Timestamp: latest,
	}, true
}

// MedianPrice returns the standard median of the votes' prices, the
// mean of the two middle elements for even counts. Returns 0 for an
// empty slice.
func MedianPrice(votes []*domain.Vote) float64 {
	n := len(votes)
	if n == 0 {
		return 0
	}

	prices := make([]float64, n)
	for i, v := range votes {
		prices[i] = v.Price
	}
	sort.Float64s(prices)

	mid := n / 2
	if n%2 == 1 {
		return prices[mid]
	}
	return (prices[mid-1] + prices[mid]) / 2
}

// agreeingVotes filters votes matching the majority direction.
func agreeingVotes(votes []*domain.Vote, direction string) []*domain.Vote {
	agree := make([]*domain.Vote, 0, len(votes))
	for _, v := range votes {
		if v.Direction == direction {
			agree = append(agree, v)
		}
	}
	return agree
}
