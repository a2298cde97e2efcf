package formulas_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketclass/pkg/formulas"
)

func TestCalculateSMA(t *testing.T) {
	closes := []float64{10, 20, 30, 40, 50}

	sma := formulas.CalculateSMA(closes, 5)
	require.NotNil(t, sma)
	assert.InDelta(t, 30.0, *sma, 1e-9)

	sma = formulas.CalculateSMA(closes, 3)
	require.NotNil(t, sma)
	assert.InDelta(t, 40.0, *sma, 1e-9)

	assert.Nil(t, formulas.CalculateSMA(closes, 6))
}

func TestCalculateRSI(t *testing.T) {
	// Monotonically rising series: RSI saturates at 100.
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	rsi := formulas.CalculateRSI(closes, 14)
	require.NotNil(t, rsi)
	assert.InDelta(t, 100.0, *rsi, 1e-6)

	assert.Nil(t, formulas.CalculateRSI(closes[:14], 14))
}

func TestCalculateMACDShortHistory(t *testing.T) {
	closes := make([]float64, 34)
	for i := range closes {
		closes[i] = 100
	}

	macd, signal := formulas.CalculateMACD(closes)
	assert.Nil(t, macd)
	assert.Nil(t, signal)

	// A flat series long enough for MACD(12,26,9) yields zero lines.
	closes = append(closes, 100)
	macd, signal = formulas.CalculateMACD(closes)
	require.NotNil(t, macd)
	require.NotNil(t, signal)
	assert.InDelta(t, 0.0, *macd, 1e-9)
	assert.InDelta(t, 0.0, *signal, 1e-9)
}

func TestMaxDrawdownPct(t *testing.T) {
	assert.Equal(t, 0.0, formulas.MaxDrawdownPct(nil))
	assert.Equal(t, 0.0, formulas.MaxDrawdownPct([]float64{100}))
	assert.Equal(t, 0.0, formulas.MaxDrawdownPct([]float64{100, 110, 120}))

	// Peak 120, trough 90: -25%.
	assert.InDelta(t, -25.0, formulas.MaxDrawdownPct([]float64{100, 120, 90, 110}), 1e-9)

	// The deepest drop wins, even if it comes after a recovery.
	assert.InDelta(t, -50.0, formulas.MaxDrawdownPct([]float64{100, 80, 120, 60}), 1e-9)
}

func TestReturnVolatilityPct(t *testing.T) {
	assert.Equal(t, 0.0, formulas.ReturnVolatilityPct([]float64{100, 110}))

	// Constant series: zero day-over-day returns, zero deviation.
	assert.InDelta(t, 0.0, formulas.ReturnVolatilityPct([]float64{100, 100, 100}), 1e-9)

	// Returns of +10% and -10%: sample stddev is sqrt(200) ~ 14.142.
	got := formulas.ReturnVolatilityPct([]float64{100, 110, 99})
	assert.InDelta(t, 14.142135, got, 1e-5)
}
