package examples

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torqfleet/botfleet/internal/broker"
	"github.com/torqfleet/botfleet/internal/models"
)

func flatBarsWithDrop(n int, dropAt int, flat, dropped float64) []broker.Bar {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]broker.Bar, n)
	for i := 0; i < n; i++ {
		price := flat
		if i >= dropAt {
			price = dropped
		}
		bars[i] = broker.Bar{Time: base.Add(time.Duration(i) * time.Minute), Open: price, High: price, Low: price, Close: price}
	}
	return bars
}

func bareConfig() MeanReversionConfig {
	return MeanReversionConfig{
		MagicNumber:      MeanReversionMagicNumber,
		Symbols:          []string{"GBPUSD"},
		BBPeriod:         3,
		BBStdDev:         1.0,
		RSIPeriod:        3,
		TrendEMAPeriod:   3,
		ATRPeriod:        3,
		CloseBeforeOpen:  true,
		MaxOpenPositions: 1,
	}
}

func TestMeanReversion_HoldsWithInsufficientBars(t *testing.T) {
	m := NewMeanReversion(bareConfig())
	bars := flatBarsWithDrop(5, 10, 1.1, 1.1)
	assert.Equal(t, models.SignalHold, m.GenerateSignal(bars, 2))
}

func TestMeanReversion_BuysOnLowerBandBreach(t *testing.T) {
	cfg := bareConfig()
	m := NewMeanReversion(cfg)
	bars := flatBarsWithDrop(15, 14, 1.1000, 1.0800)

	got := m.GenerateSignal(bars, 14)
	assert.Equal(t, models.SignalBuy, got)
}

func TestMeanReversion_HoldsWhenPriceStaysWithinBands(t *testing.T) {
	cfg := bareConfig()
	m := NewMeanReversion(cfg)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]broker.Bar, 15)
	for i := 0; i < 12; i++ {
		bars[i] = broker.Bar{Time: base.Add(time.Duration(i) * time.Minute), Close: 1.1000}
	}
	bars[12] = broker.Bar{Time: base.Add(12 * time.Minute), Close: 1.1000}
	bars[13] = broker.Bar{Time: base.Add(13 * time.Minute), Close: 1.1020}
	bars[14] = broker.Bar{Time: base.Add(14 * time.Minute), Close: 1.1010}

	got := m.GenerateSignal(bars, 14)
	assert.Equal(t, models.SignalHold, got)
}

func TestMeanReversion_RSIFilterBlocksBuyWhenNotOversold(t *testing.T) {
	cfg := bareConfig()
	cfg.UseRSI = true
	cfg.RSIOversold = 0 // impossible to satisfy, always blocks buys
	m := NewMeanReversion(cfg)
	bars := flatBarsWithDrop(15, 14, 1.1000, 1.0800)

	got := m.GenerateSignal(bars, 14)
	assert.Equal(t, models.SignalHold, got)
}

func TestMeanReversion_MagicNumberAndParameters(t *testing.T) {
	cfg := NewMeanReversionConfig(nil)
	m := NewMeanReversion(cfg)
	assert.Equal(t, MeanReversionMagicNumber, m.MagicNumber())
	params := m.Parameters()
	assert.Equal(t, "MeanReversionStrategy", params.Name)
	assert.Equal(t, []string{"GBPUSD"}, params.Symbols)
}

func TestMeanReversion_SLTP_ATRBased(t *testing.T) {
	cfg := bareConfig()
	cfg.UseATRSLTP = true
	cfg.SLATRMultiple = 2
	cfg.TPATRMultiple = 4
	m := NewMeanReversion(cfg)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]broker.Bar, 15)
	for i := range bars {
		bars[i] = broker.Bar{
			Time: base.Add(time.Duration(i) * time.Minute),
			High: 1.1010, Low: 1.1000, Close: 1.1005,
		}
	}
	m.GenerateSignal(bars, 14) // populates currentATR as a side effect

	sl, tp := m.SLTP("GBPUSD", models.ActionBuy, 1.1000)
	require.NotNil(t, sl)
	require.NotNil(t, tp)
	assert.Less(t, *sl, 1.1000)
	assert.Greater(t, *tp, 1.1000)
}

func TestMeanReversion_PositionSize_FallsBackToMinimumOnZeroRisk(t *testing.T) {
	m := NewMeanReversion(bareConfig())
	assert.Equal(t, 0.01, m.PositionSize("GBPUSD", 0, 1.1))
}
