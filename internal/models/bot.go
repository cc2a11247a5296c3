package models

// BotStatus is the lifecycle status of a registered Bot Worker.
type BotStatus string

// Bot statuses.
const (
	BotStatusStarting      BotStatus = "starting"
	BotStatusRunning       BotStatus = "running"
	BotStatusWaitingMarket BotStatus = "waiting_market"
	BotStatusPaused        BotStatus = "paused"
	BotStatusStopped       BotStatus = "stopped"
)

// BotRecord is the read-only, queryable view of a registered bot exposed
// by the Fleet Controller and serialized into the state snapshot.
type BotRecord struct {
	BotID           string    `json:"bot_id"`
	Status          BotStatus `json:"status"`
	Symbol          string    `json:"symbol"`
	Timeframe       int       `json:"timeframe"`
	IntervalSeconds int       `json:"interval_seconds"`
	MagicNumber     int       `json:"magic_number"`
	IsAlive         bool      `json:"is_alive"`
}
