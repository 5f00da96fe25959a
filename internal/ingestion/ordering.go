package ingestion

import (
	"errors"
	"sort"

	"trader-consensus-lab/internal/domain"
)

// ErrInvalidOrdering is returned when fills are not properly ordered.
var ErrInvalidOrdering = errors.New("fills are not in deterministic order")

// SortFills orders fills by (timestamp ASC, fill_id ASC). The fill ID
// breaks timestamp ties so replays over the same data are byte-stable.
func SortFills(fills []*domain.Fill) {
	sort.Slice(fills, func(i, j int) bool {
		return compareFills(fills[i], fills[j]) < 0
	})
}

// ValidateFillOrdering checks if fills are strictly ordered.
// Returns ErrInvalidOrdering if not, including on duplicate fill IDs.
func ValidateFillOrdering(fills []*domain.Fill) error {
	for i := 1; i < len(fills); i++ {
		if compareFills(fills[i-1], fills[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareFills returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (timestamp ASC, fill_id ASC)
func compareFills(a, b *domain.Fill) int {
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	if a.FillID != b.FillID {
		if a.FillID < b.FillID {
			return -1
		}
		return 1
	}
	return 0
}
