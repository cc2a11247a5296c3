package examples

import (
	"math"

	"github.com/torqfleet/botfleet/internal/broker"
	"github.com/torqfleet/botfleet/internal/models"
	"github.com/torqfleet/botfleet/internal/strategy"
	"github.com/torqfleet/botfleet/internal/util"
)

// MeanReversionMagicNumber is MeanReversion's default magic number.
const MeanReversionMagicNumber = 10

// MeanReversionConfig holds every tunable of the strategy. The zero
// value is not meaningful; build one with NewMeanReversionConfig.
type MeanReversionConfig struct {
	MagicNumber int
	Symbols     []string

	BBPeriod int
	BBStdDev float64

	UseRSI        bool
	RSIPeriod     int
	RSIOversold   float64
	RSIOverbought float64

	UseTrendFilter  bool
	TrendEMAPeriod  int
	TrendTolerance  float64

	UseVolumeFilter bool
	VolumePeriod    int
	VolumeFactor    float64

	UseSqueezeFilter  bool
	SqueezeLookback   int
	SqueezeThreshold  float64

	RiskPercent    float64
	UseATRSLTP     bool
	ATRPeriod      int
	SLATRMultiple  float64
	TPATRMultiple  float64
	SLPips         float64
	TPPips         float64

	CloseBeforeOpen  bool
	MaxOpenPositions int
}

// NewMeanReversionConfig returns the reference defaults.
func NewMeanReversionConfig(symbols []string) MeanReversionConfig {
	if len(symbols) == 0 {
		symbols = []string{"GBPUSD"}
	}
	return MeanReversionConfig{
		MagicNumber: MeanReversionMagicNumber,
		Symbols:     symbols,

		BBPeriod: 20,
		BBStdDev: 2.5,

		UseRSI:        true,
		RSIPeriod:     14,
		RSIOversold:   25,
		RSIOverbought: 75,

		UseTrendFilter: true,
		TrendEMAPeriod: 50,
		TrendTolerance: 0.02,

		UseVolumeFilter: false,
		VolumePeriod:    20,
		VolumeFactor:    1.5,

		UseSqueezeFilter: true,
		SqueezeLookback:  50,
		SqueezeThreshold: 0.8,

		RiskPercent:   1.0,
		UseATRSLTP:    true,
		ATRPeriod:     14,
		SLATRMultiple: 1.5,
		TPATRMultiple: 3.0,
		SLPips:        30,
		TPPips:        60,

		CloseBeforeOpen:  true,
		MaxOpenPositions: 1,
	}
}

// MeanReversion trades reversals off Bollinger Band extremes, optionally
// confirmed by RSI, an EMA trend filter, a volume filter and a
// volatility-squeeze guard, with ATR-based or fixed-pip SL/TP.
type MeanReversion struct {
	cfg MeanReversionConfig

	currentATR     float64
	currentBBWidth float64
}

var _ strategy.Strategy = (*MeanReversion)(nil)

// NewMeanReversion constructs a MeanReversion strategy from cfg.
func NewMeanReversion(cfg MeanReversionConfig) *MeanReversion {
	return &MeanReversion{cfg: cfg}
}

// MagicNumber implements strategy.Strategy.
func (m *MeanReversion) MagicNumber() int { return m.cfg.MagicNumber }

// Parameters implements strategy.Strategy.
func (m *MeanReversion) Parameters() strategy.Parameters {
	return strategy.Parameters{
		Name:             "MeanReversionStrategy",
		Symbols:          m.cfg.Symbols,
		CloseBeforeOpen:  m.cfg.CloseBeforeOpen,
		MaxOpenPositions: m.cfg.MaxOpenPositions,
	}
}

func (m *MeanReversion) minRequiredBars() int {
	periods := []int{m.cfg.BBPeriod, m.cfg.RSIPeriod, m.cfg.TrendEMAPeriod, m.cfg.ATRPeriod}
	max := 0
	for _, p := range periods {
		if p > max {
			max = p
		}
	}
	return max + 10
}

// GenerateSignal implements strategy.Strategy.
func (m *MeanReversion) GenerateSignal(bars []broker.Bar, currentIndex int) models.SignalType {
	if currentIndex < m.minRequiredBars() || currentIndex >= len(bars) {
		return models.SignalHold
	}

	window := bars[:currentIndex+1]
	closes := closesOf(window)
	highs := highsOf(window)
	lows := lowsOf(window)

	currentPrice := closes[len(closes)-1]

	sma := sma(closes, m.cfg.BBPeriod)
	stddev := stddev(closes, m.cfg.BBPeriod)
	upper := sma + m.cfg.BBStdDev*stddev
	lower := sma - m.cfg.BBStdDev*stddev

	if sma != 0 {
		m.currentBBWidth = (upper - lower) / sma
	}
	m.currentATR = atr(highs, lows, closes, m.cfg.ATRPeriod)

	if m.cfg.UseSqueezeFilter {
		avgWidth := averageBBWidth(closes, m.cfg.BBPeriod, m.cfg.BBStdDev, m.cfg.SqueezeLookback)
		if avgWidth > 0 && m.currentBBWidth < avgWidth*m.cfg.SqueezeThreshold {
			return models.SignalHold
		}
	}

	if m.cfg.UseVolumeFilter {
		volumes := volumesOf(window)
		avgVolume := sma(volumes, m.cfg.VolumePeriod)
		currentVolume := volumes[len(volumes)-1]
		if currentVolume < avgVolume*m.cfg.VolumeFactor {
			return models.SignalHold
		}
	}

	rsiOKBuy, rsiOKSell := true, true
	if m.cfg.UseRSI {
		r := rsi(closes, m.cfg.RSIPeriod)
		rsiOKBuy = r < m.cfg.RSIOversold
		rsiOKSell = r > m.cfg.RSIOverbought
	}

	trendOKBuy, trendOKSell := true, true
	if m.cfg.UseTrendFilter {
		emaTrend := ema(closes, m.cfg.TrendEMAPeriod)
		trendOKBuy = currentPrice > emaTrend*(1-m.cfg.TrendTolerance)
		trendOKSell = currentPrice < emaTrend*(1+m.cfg.TrendTolerance)
	}

	if currentPrice <= lower && rsiOKBuy && trendOKBuy {
		return models.SignalBuy
	}
	if currentPrice >= upper && rsiOKSell && trendOKSell {
		return models.SignalSell
	}
	return models.SignalHold
}

// PositionSize risk-sizes the trade: RiskPercent of equity divided by the
// stop distance in pips (ATR-derived when UseATRSLTP is set and an ATR has
// been computed, SLPips otherwise) times a fixed pip value of 10 per lot.
// It returns the minimum lot of 0.01 when the pip size, risk amount or
// stop distance is not positive, or when the computed volume is smaller.
func (m *MeanReversion) PositionSize(symbol string, equity, entryPrice float64) float64 {
	riskAmount := equity * (m.cfg.RiskPercent / 100)
	pip := util.PipSize(symbol)
	if pip <= 0 || riskAmount <= 0 {
		return 0.01
	}

	var slPips float64
	if m.cfg.UseATRSLTP && m.currentATR > 0 {
		slPips = (m.currentATR * m.cfg.SLATRMultiple) / pip
	} else {
		slPips = m.cfg.SLPips
	}
	if slPips <= 0 {
		return 0.01
	}

	// The symbol's contract size is not available here, so every symbol
	// is priced at 10 per pip per lot, the pip value of one standard FX
	// lot quoted in USD.
	const fallbackPipValuePerLot = 10.0
	volume := riskAmount / (slPips * fallbackPipValuePerLot)
	if volume < 0.01 {
		volume = 0.01
	}
	return math.Round(volume*100) / 100
}

// SLTP implements strategy.Strategy.
func (m *MeanReversion) SLTP(symbol string, action models.Action, entryPrice float64) (*float64, *float64) {
	pip := util.PipSize(symbol)
	if pip <= 0 {
		return nil, nil
	}

	var slDist, tpDist float64
	if m.cfg.UseATRSLTP && m.currentATR > 0 {
		slDist = m.currentATR * m.cfg.SLATRMultiple
		tpDist = m.currentATR * m.cfg.TPATRMultiple
	} else {
		slDist = m.cfg.SLPips * pip
		tpDist = m.cfg.TPPips * pip
	}

	var sl, tp float64
	if action == models.ActionBuy {
		sl = entryPrice - slDist
		tp = entryPrice + tpDist
	} else {
		sl = entryPrice + slDist
		tp = entryPrice - tpDist
	}
	return &sl, &tp
}
