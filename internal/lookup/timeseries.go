package lookup

import (
	"errors"

	"trader-consensus-lab/internal/domain"
)

// ErrNoMidData is returned when a mid-price series is empty or has no
// point at or before the requested instant.
var ErrNoMidData = errors.New("no mid price data available")

// MidAt returns the mid price at or before the target timestamp.
// Points must be ordered by timestamp ASC.
// Returns ErrNoMidData if the slice is empty or every point is after
// the target; a price from the future is never returned.
func MidAt(target int64, points []*domain.MidPoint) (float64, error) {
	// Find closest mid at or before target
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].TimestampMs <= target {
			return points[i].Mid, nil
		}
	}
	return 0, ErrNoMidData
}
