package domain

import "strings"

// WinRateStat is one trader's historical performance sample, refreshed
// periodically from closed episodes.
type WinRateStat struct {
	WinRate float64 // closed episodes with R > 0 / total closed episodes
	Samples int     // number of closed episodes behind the estimate
}

// WinRateTable maps lowercased trader address to its stat.
type WinRateTable map[string]WinRateStat

// PairKey identifies an unordered trader address pair. Construct it
// through NewPairKey so lookup is order-independent.
type PairKey struct {
	A string
	B string
}

// NewPairKey returns the canonical key for two addresses: lowercased
// and sorted so that (x, y) and (y, x) produce the same key.
func NewPairKey(a, b string) PairKey {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if b < a {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// CorrelationMatrix maps address pairs to estimated pairwise
// correlation of directional behavior, in [-1, 1].
type CorrelationMatrix map[PairKey]float64

// Lookup returns the estimate for the pair and whether one exists.
// Self-pairs are always perfectly correlated.
func (m CorrelationMatrix) Lookup(a, b string) (float64, bool) {
	if strings.EqualFold(a, b) {
		return 1.0, true
	}
	rho, ok := m[NewPairKey(a, b)]
	return rho, ok
}
