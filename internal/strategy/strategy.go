// Package strategy defines the Strategy contract a Bot Worker drives:
// signal generation against a bar window, position sizing, SL/TP
// placement, and the parameters the Fleet Controller needs to enforce
// uniqueness and entry policy. It stays implementation-free; concrete
// strategies live under internal/strategy/examples.
package strategy

import (
	"github.com/torqfleet/botfleet/internal/broker"
	"github.com/torqfleet/botfleet/internal/models"
)

// Parameters is the configuration a Strategy exposes to its controller.
type Parameters struct {
	// Name identifies the strategy class, used in bot-id generation and
	// logging. Distinct from a bot-id: many bots may share one Name
	// against different symbols.
	Name string
	// Symbols are the instruments this strategy may be instantiated
	// against.
	Symbols []string
	// CloseBeforeOpen, if true, means the worker closes every open
	// position it owns on the traded symbol before submitting a new
	// entry.
	CloseBeforeOpen bool
	// MaxOpenPositions bounds concurrent positions when
	// CloseBeforeOpen is false. Ignored otherwise.
	MaxOpenPositions int
}

// Strategy is a polymorphic trading decision engine. A Bot Worker calls
// it once per iteration with the freshest bar window; beyond that the
// worker never introspects a strategy's internals.
type Strategy interface {
	// MagicNumber is immutable once the strategy is registered and must
	// be unique across strategy classes (two instances of the same
	// class sharing one magic number is fine; two different classes
	// colliding is a Fleet Controller registration error).
	MagicNumber() int

	// GenerateSignal is pure with respect to bars: given the same
	// window and index it may still vary because a strategy is allowed
	// internal state across calls (e.g. a cooldown clock), but it must
	// never mutate bars.
	GenerateSignal(bars []broker.Bar, currentIndex int) models.SignalType

	// Parameters reports this strategy's static configuration.
	Parameters() Parameters

	// PositionSize returns the lot size to trade, bounded by the
	// symbol's broker-reported min/max/step. The Bot Worker does not
	// clamp; a strategy returning an out-of-range volume produces an
	// order rejection, not a silent correction.
	PositionSize(symbol string, equity, entryPrice float64) float64

	// SLTP returns stop-loss/take-profit prices, already rounded to the
	// symbol's digit precision. Either may be nil for no SL/TP.
	SLTP(symbol string, action models.Action, entryPrice float64) (sl, tp *float64)
}
