package models

import "time"

// SignalType is the strategy's decision for one iteration.
type SignalType string

// Signal types.
const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
	SignalHold SignalType = "hold"
)

// SkipReason explains why a generated signal was not executed.
type SkipReason string

// Known skip reasons. Hosts may record others; these are the ones the
// core itself produces.
const (
	SkipReasonMaxPositions SkipReason = "max_positions"
	SkipReasonMarketClosed SkipReason = "market_closed"
	SkipReasonNone         SkipReason = ""
)

// Signal is one record per strategy decision, regardless of execution.
// Write-once: the store never mutates a Signal row after insert.
type Signal struct {
	ID                  int64
	BotID               string
	StrategyName        string
	Symbol              string
	Timeframe           string
	SignalType          SignalType
	GeneratedAt         time.Time
	PriceAtSignal       float64
	WasExecuted         bool
	ExecutionTicket     *int64
	SkipReason          SkipReason
	IndicatorsSnapshot  *string
	CreatedAt           time.Time
}
