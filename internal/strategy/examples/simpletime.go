// Package examples provides concrete Strategy implementations shipped
// alongside the core contract: a cooldown-based time strategy and a
// Bollinger-band mean reversion strategy.
package examples

import (
	"time"

	"github.com/torqfleet/botfleet/internal/broker"
	"github.com/torqfleet/botfleet/internal/models"
	"github.com/torqfleet/botfleet/internal/strategy"
	"github.com/torqfleet/botfleet/internal/util"
)

// SimpleTimeMagicNumber is SimpleTimeStrategy's fixed magic number.
const SimpleTimeMagicNumber = 1

// SimpleTime emits a buy on its first signal and another each time a
// fixed duration has elapsed since the previous buy, with no chart
// analysis at all. It never closes a position: with CloseBeforeOpen false
// and MaxOpenPositions 1, the worker skips a repeat buy while the
// previous position is still open.
type SimpleTime struct {
	symbols     []string
	holdFor     time.Duration
	fixedLot    float64
	slPips      float64
	tpPips      float64
	hasPosition bool
	openedAt    time.Time
}

var _ strategy.Strategy = (*SimpleTime)(nil)

// NewSimpleTime constructs a SimpleTime strategy over symbols. Defaults
// match the reference implementation: 20-minute hold, 0.05 lot, 100 pip
// SL, 300 pip TP.
func NewSimpleTime(symbols []string) *SimpleTime {
	if len(symbols) == 0 {
		symbols = []string{"EURUSD", "GBPUSD", "USDJPY"}
	}
	return &SimpleTime{
		symbols:  symbols,
		holdFor:  20 * time.Minute,
		fixedLot: 0.05,
		slPips:   100,
		tpPips:   300,
	}
}

// MagicNumber implements strategy.Strategy.
func (s *SimpleTime) MagicNumber() int { return SimpleTimeMagicNumber }

// GenerateSignal opens a buy on the first call, then reopens once
// holdFor has elapsed since the last open.
func (s *SimpleTime) GenerateSignal(bars []broker.Bar, currentIndex int) models.SignalType {
	if currentIndex < 0 || currentIndex >= len(bars) {
		return models.SignalHold
	}
	current := bars[currentIndex].Time

	if !s.hasPosition {
		s.hasPosition = true
		s.openedAt = current
		return models.SignalBuy
	}

	if current.Sub(s.openedAt) >= s.holdFor {
		s.openedAt = current
		return models.SignalBuy
	}

	return models.SignalHold
}

// Parameters implements strategy.Strategy.
func (s *SimpleTime) Parameters() strategy.Parameters {
	return strategy.Parameters{
		Name:             "SimpleTimeStrategy",
		Symbols:          s.symbols,
		CloseBeforeOpen:  false,
		MaxOpenPositions: 1,
	}
}

// PositionSize always returns the configured fixed lot size.
func (s *SimpleTime) PositionSize(symbol string, equity, entryPrice float64) float64 {
	return s.fixedLot
}

// SLTP computes fixed-pip stop-loss/take-profit around entryPrice.
func (s *SimpleTime) SLTP(symbol string, action models.Action, entryPrice float64) (*float64, *float64) {
	pip := util.PipSize(symbol)
	if pip <= 0 {
		return nil, nil
	}

	var sl, tp float64
	if action == models.ActionBuy {
		sl = entryPrice - s.slPips*pip
		tp = entryPrice + s.tpPips*pip
	} else {
		sl = entryPrice + s.slPips*pip
		tp = entryPrice - s.tpPips*pip
	}
	return &sl, &tp
}
