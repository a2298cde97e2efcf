package formulas

import "gonum.org/v1/gonum/stat"

// MaxDrawdownPct returns the maximum drawdown of a value series as a
// non-positive percentage: min over t of 100 * (V(t) - peak(t)) / peak(t).
// A series that never falls below its running peak returns 0.
func MaxDrawdownPct(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	maxDrawdown := 0.0
	peak := values[0]

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			drawdown := 100 * (v - peak) / peak
			if drawdown < maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown
}

// ReturnVolatilityPct returns the sample standard deviation of day-over-day
// returns, in percent. Used as a leaderboard risk diagnostic, not as a score
// component.
func ReturnVolatilityPct(values []float64) float64 {
	if len(values) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] > 0 {
			returns = append(returns, 100*(values[i]-values[i-1])/values[i-1])
		}
	}
	if len(returns) < 2 {
		return 0
	}

	return stat.StdDev(returns, nil)
}
