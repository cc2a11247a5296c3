package examples

import (
	"math"

	"github.com/torqfleet/botfleet/internal/broker"
)

func closesOf(bars []broker.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func highsOf(bars []broker.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

func lowsOf(bars []broker.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

func volumesOf(bars []broker.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// sma returns the simple moving average of the last period values of
// series, or 0 if series is shorter than period.
func sma(series []float64, period int) float64 {
	if period <= 0 || len(series) < period {
		return 0
	}
	window := series[len(series)-period:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(period)
}

// stddev returns the population standard deviation of the last period
// values of series.
func stddev(series []float64, period int) float64 {
	if period <= 0 || len(series) < period {
		return 0
	}
	mean := sma(series, period)
	window := series[len(series)-period:]
	sumSq := 0.0
	for _, v := range window {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(period))
}

// ema returns the exponential moving average of series over period,
// computed from the start of the slice (matches pandas' adjust=False
// recurrence: seed with the first value, then apply smoothing forward).
func ema(series []float64, period int) float64 {
	if period <= 0 || len(series) == 0 {
		return 0
	}
	alpha := 2.0 / (float64(period) + 1)
	result := series[0]
	for _, v := range series[1:] {
		result = alpha*v + (1-alpha)*result
	}
	return result
}

// rsi computes the Relative Strength Index over the last period deltas
// (period+1 values) of series using a simple (non-Wilder) rolling average, matching the
// reference implementation's pandas rolling-mean approach.
func rsi(series []float64, period int) float64 {
	if period <= 0 || len(series) < period+1 {
		return 50
	}
	window := series[len(series)-(period+1):]

	var gainSum, lossSum float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// atr computes the Average True Range over the last period true ranges
// derived from highs/lows/closes.
func atr(highs, lows, closes []float64, period int) float64 {
	n := len(closes)
	if period <= 0 || n < period+1 {
		return 0
	}

	trueRanges := make([]float64, 0, period)
	start := n - period
	for i := start; i < n; i++ {
		tr1 := highs[i] - lows[i]
		tr2 := math.Abs(highs[i] - closes[i-1])
		tr3 := math.Abs(lows[i] - closes[i-1])
		trueRanges = append(trueRanges, math.Max(tr1, math.Max(tr2, tr3)))
	}

	sum := 0.0
	for _, tr := range trueRanges {
		sum += tr
	}
	return sum / float64(len(trueRanges))
}

// averageBBWidth computes the rolling average Bollinger Band width over
// lookback periods, used by the squeeze filter to compare current width
// against its recent history.
func averageBBWidth(closes []float64, bbPeriod int, bbStd float64, lookback int) float64 {
	n := len(closes)
	if n < bbPeriod+lookback {
		return 0
	}

	widths := make([]float64, 0, lookback)
	for i := n - lookback; i < n; i++ {
		slice := closes[:i+1]
		m := sma(slice, bbPeriod)
		if m == 0 {
			continue
		}
		sd := stddev(slice, bbPeriod)
		width := (2 * bbStd * sd) / m
		widths = append(widths, width)
	}
	if len(widths) == 0 {
		return 0
	}

	sum := 0.0
	for _, w := range widths {
		sum += w
	}
	return sum / float64(len(widths))
}
