// Package episode reconstructs per-(trader, asset) round-trip trades
// from a chronologically ordered fill stream and normalizes their
// outcomes into winsorized R-multiples against a policy stop.
package episode

import "trader-consensus-lab/internal/domain"

// BpsToR converts basis points to R-units against the policy stop.
// Returns 0 when stopBps is 0 rather than dividing by zero.
func BpsToR(bps, stopBps float64) float64 {
	if stopBps == 0 {
		return 0
	}
	return bps / stopBps
}

// CalculateR converts realized PnL to a winsorized R-multiple: the PnL
// divided by the risk amount, clamped to [rMin, rMax]. A reported 4R
// win with the default [-2, 2] bounds is recorded as a 2R win.
// Returns 0 when riskAmount is 0.
func CalculateR(realizedPnl, riskAmount, rMin, rMax float64) float64 {
	if riskAmount == 0 {
		return 0
	}
	r := realizedPnl / riskAmount
	if r < rMin {
		return rMin
	}
	if r > rMax {
		return rMax
	}
	return r
}

// CalculateStopPrice returns the policy stop price for an entry:
// below entry for longs, above entry for shorts.
func CalculateStopPrice(entry float64, direction string, stopFraction float64) float64 {
	if direction == domain.DirectionShort {
		return entry * (1 + stopFraction)
	}
	return entry * (1 - stopFraction)
}
