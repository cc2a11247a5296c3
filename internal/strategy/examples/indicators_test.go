package examples

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSMA_AveragesLastPeriodValues(t *testing.T) {
	series := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 4.0, sma(series, 3), 1e-9) // (3+4+5)/3
	assert.Equal(t, 0.0, sma(series, 10))
}

func TestStddev_PopulationFormula(t *testing.T) {
	series := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.0, stddev(series, 8), 1e-6)
}

func TestEMA_SeedsWithFirstValue(t *testing.T) {
	series := []float64{1, 1, 1, 1}
	assert.InDelta(t, 1.0, ema(series, 3), 1e-9)
}

func TestRSI_AllGainsIsOneHundred(t *testing.T) {
	series := make([]float64, 15)
	for i := range series {
		series[i] = float64(i)
	}
	assert.Equal(t, 100.0, rsi(series, 14))
}

func TestRSI_NoData_FallsBackToNeutral(t *testing.T) {
	assert.Equal(t, 50.0, rsi([]float64{1, 2}, 14))
}

func TestATR_ConstantRangeReturnsThatRange(t *testing.T) {
	highs := make([]float64, 20)
	lows := make([]float64, 20)
	closes := make([]float64, 20)
	for i := range highs {
		highs[i] = 1.1010
		lows[i] = 1.1000
		closes[i] = 1.1005
	}
	assert.InDelta(t, 0.0010, atr(highs, lows, closes, 14), 1e-9)
}
