// Package formulas provides the small financial math helpers shared by the
// market data reader and the scoring engine.
package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateRSI calculates the Relative Strength Index over the close series
// and returns the latest value, or nil if there is insufficient history.
func CalculateRSI(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}

	rsi := talib.Rsi(closes, length)
	return lastValid(rsi)
}

// CalculateSMA calculates the simple moving average over the close series
// and returns the latest value, or nil if there is insufficient history.
func CalculateSMA(closes []float64, length int) *float64 {
	if len(closes) < length {
		return nil
	}

	sma := talib.Sma(closes, length)
	return lastValid(sma)
}

// CalculateMACD calculates MACD(12,26,9) over the close series and returns
// the latest MACD and signal line values. Either may be nil with short
// history.
func CalculateMACD(closes []float64) (macd *float64, signal *float64) {
	// talib needs slowPeriod+signalPeriod bars before emitting values.
	if len(closes) < 35 {
		return nil, nil
	}

	macdLine, signalLine, _ := talib.Macd(closes, 12, 26, 9)
	return lastValid(macdLine), lastValid(signalLine)
}

// lastValid returns a pointer to the last non-NaN value of the series.
func lastValid(series []float64) *float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !isNaN(series[i]) {
			v := series[i]
			return &v
		}
	}
	return nil
}

// isNaN checks if a float64 is NaN without importing math.
func isNaN(f float64) bool {
	return f != f
}
