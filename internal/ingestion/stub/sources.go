package stub

import (
	"context"
	"strings"

	"trader-consensus-lab/internal/domain"
)

// StubFillSource returns fixed in-memory fills for testing.
// Fills can be intentionally unordered to test sorting.
// Implements ingestion.FillSource interface.
type StubFillSource struct {
	fills []*domain.Fill
}

// NewStubFillSource creates a new stub fill source with the given fills.
func NewStubFillSource(fills []*domain.Fill) *StubFillSource {
	return &StubFillSource{fills: fills}
}

// Fetch returns fills matching the address and time range.
// Returns copies to prevent mutation.
func (s *StubFillSource) Fetch(_ context.Context, address string, from, to int64) ([]*domain.Fill, error) {
	address = strings.ToLower(address)

	var result []*domain.Fill
	for _, f := range s.fills {
		if strings.ToLower(f.Address) == address && f.Timestamp >= from && f.Timestamp <= to {
			cp := *f
			result = append(result, &cp)
		}
	}
	return result, nil
}

// StubMidSource returns fixed mid prices for testing.
// Implements ingestion.MidSource interface.
type StubMidSource struct {
	mids map[string]float64
}

// NewStubMidSource creates a new stub mid source.
func NewStubMidSource(mids map[string]float64) *StubMidSource {
	return &StubMidSource{mids: mids}
}

// AllMids returns a copy of the configured mid prices.
func (s *StubMidSource) AllMids(_ context.Context) (map[string]float64, error) {
	cp := make(map[string]float64, len(s.mids))
	for asset, mid := range s.mids {
		cp[asset] = mid
	}
	return cp, nil
}
