// Package models provides the data structures shared across the fleet:
// trades, signals, bot registrations, events and IPC command/state payloads.
package models

import "time"

// TradeStatus is the lifecycle status of a Trade row.
type TradeStatus string

// Trade statuses.
const (
	TradeStatusOpened    TradeStatus = "opened"
	TradeStatusClosed    TradeStatus = "closed"
	TradeStatusCancelled TradeStatus = "cancelled"
	TradeStatusError     TradeStatus = "error"
)

// CloseReason classifies why a position was closed.
type CloseReason string

// Close reasons. CloseReasonNone is stored as an empty
// string / SQL NULL, never as the literal "null".
const (
	CloseReasonSL        CloseReason = "sl"
	CloseReasonTP        CloseReason = "tp"
	CloseReasonManual    CloseReason = "manual"
	CloseReasonSignal    CloseReason = "signal"
	CloseReasonSynced    CloseReason = "synced"
	CloseReasonEndOfData CloseReason = "end_of_data"
	CloseReasonNone      CloseReason = ""
)

// Action is the trade direction.
type Action string

// Trade directions.
const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Trade is one lifecycle record per opened position.
//
// Invariants: OpenedAt <= ClosedAt; Status == TradeStatusClosed implies
// ExitPrice != nil and ClosedAt != nil; Ticket is unique among opened rows
// in a given account database; MagicNumber is immutable once inserted.
type Trade struct {
	ID             int64
	Ticket         int64
	MagicNumber    int
	BotID          string
	StrategyName   string
	Symbol         string
	Action         Action
	Volume         float64
	EntryPrice     float64
	ExitPrice      *float64
	SLPrice        *float64
	TPPrice        *float64
	Profit         float64
	ProfitPips     *float64
	Commission     float64
	Swap           float64
	OpenedAt       time.Time
	ClosedAt       *time.Time
	Status         TradeStatus
	CloseReason    CloseReason
	SignalData     *string
	MarketContext  *string
	CreatedAt      time.Time
}

// IsOpen reports whether the trade is still live.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeStatusOpened
}
