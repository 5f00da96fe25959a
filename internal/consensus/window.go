package consensus

// Volatility percentile thresholds for the adaptive freshness window.
const (
	lowVolPercentile  = 0.3
	highVolPercentile = 0.7
)

// AdaptiveWindowMs widens the freshness window under high volatility
// and narrows it under low volatility: below the low percentile the
// window is halved, at or above the high percentile it is tripled,
// otherwise the base window is used unchanged.
func AdaptiveWindowMs(volatilityPercentile float64, baseWindowMs int64) int64 {
	switch {
	case volatilityPercentile < lowVolPercentile:
		return baseWindowMs / 2
	case volatilityPercentile >= highVolPercentile:
		return baseWindowMs * 3
	default:
		return baseWindowMs
	}
}
