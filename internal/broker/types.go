// Package broker defines the abstract contract to a trading terminal:
// connect/reconnect, health probe, symbol resolution, rates, order
// submission, positions/history queries, account info, and a market-open
// test, plus a concrete JSON-RPC-over-socket implementation and a
// circuit-breaker decorator. The terminal itself — the real broker
// connection — is out of scope; TerminalClient talks to whatever process
// implements the wire protocol in transport.go.
package broker

import (
	"errors"
	"fmt"
	"time"

	"github.com/torqfleet/botfleet/internal/models"
)

// RetcodeDone is the broker retcode sentinel meaning an order fully
// succeeded (mirrors MT5's TRADE_RETCODE_DONE = 10009).
const RetcodeDone = 10009

// FillPolicy controls whether an order may be partially filled.
type FillPolicy string

// Fill policies, broker-specific in practice but treated as a
// configuration knob of the adapter.
const (
	FillOrKill       FillPolicy = "fok"
	ImmediateOrCancel FillPolicy = "ioc"
)

// ConnectConfig carries the credentials and timeout Initialize needs.
type ConnectConfig struct {
	Path     string
	Login    int64
	Password string
	Server   string
	Timeout  time.Duration
}

// SymbolInfo describes a resolved, selectable symbol.
type SymbolInfo struct {
	Name          string
	Digits        int
	VolumeMin     float64
	VolumeMax     float64
	VolumeStep    float64
	ContractSize  float64
	Tradable      bool
	SessionActive bool
	// SpreadPoints and Point are the terminal's own nominal-spread
	// reporting (MT5's symbol_info.spread/.point), used by MarketOpen's
	// stale-tick fast-path check. SpreadPoints is 0 for terminals that
	// don't report it, which disables the fast path for that symbol.
	SpreadPoints int
	Point        float64
}

// NominalSpread returns the symbol's broker-reported typical spread in
// price units (SpreadPoints * Point), or 0 if either is unset.
func (s SymbolInfo) NominalSpread() float64 {
	return float64(s.SpreadPoints) * s.Point
}

// Bar is one OHLCV candle. Time is normalized to UTC seconds by the
// adapter before it reaches a Strategy.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Position is a live, broker-reported open position.
type Position struct {
	Ticket    int64
	Symbol    string
	Magic     int
	Type      models.Action
	Volume    float64
	PriceOpen float64
	SL        *float64
	TP        *float64
	Profit    float64
}

// PositionFilter narrows a Positions query. A zero value matches
// everything.
type PositionFilter struct {
	Symbol string
	Magic  *int
}

// Deal is one broker history record: one side of a position's lifecycle.
type Deal struct {
	PositionID int64
	OrderID    int64
	Time       time.Time
	Price      float64
	Volume     float64
	Type       models.Action
	Profit     float64
	Commission float64
	Swap       float64
	Magic      int
	Comment    string
	Symbol     string
}

// OrderResult is the broker's response to a submit/modify/close call.
type OrderResult struct {
	Retcode int
	Ticket  int64
	Price   float64
	Volume  float64
}

// Done reports whether the broker retcode equals the success sentinel.
func (r OrderResult) Done() bool {
	return r.Retcode == RetcodeDone
}

// MarketOrderRequest is the input to SubmitMarket.
type MarketOrderRequest struct {
	Symbol  string
	Action  models.Action
	Volume  float64
	SL      *float64
	TP      *float64
	Magic   int
	Comment string
	Fill    FillPolicy
}

// PendingOrderRequest is the input to SubmitPending.
type PendingOrderRequest struct {
	Symbol     string
	Action     models.Action
	Price      float64
	Expiration time.Time
	SL         *float64
	TP         *float64
	Magic      int
	Comment    string
	Fill       FillPolicy
}

// AccountInfo is a snapshot of the connected trading account.
type AccountInfo struct {
	Balance     float64
	Equity      float64
	Profit      float64
	FreeMargin  float64
	Leverage    int
	Login       int64
	TradeMode   string
}

// Error taxonomy. Callers use errors.Is/As against these.
var (
	// ErrConnection indicates the broker is unreachable or the terminal is
	// disconnected after exhausting the configured retry budget.
	ErrConnection = errors.New("broker: connection failed")
	// ErrSymbolNotFound indicates symbol resolution exhausted every search
	// strategy without a match.
	ErrSymbolNotFound = errors.New("broker: symbol not found")
	// ErrSymbolSelect indicates the terminal refused to select a resolved
	// symbol into the watchlist.
	ErrSymbolSelect = errors.New("broker: symbol select refused")
	// ErrOrderSubmit indicates the broker returned a non-success retcode.
	// Use errors.As with *OrderSubmitError to recover the retcode.
	ErrOrderSubmit = errors.New("broker: order submit failed")
)

// OrderSubmitError wraps ErrOrderSubmit with the retcode the broker
// actually returned.
type OrderSubmitError struct {
	Retcode int
}

func (e *OrderSubmitError) Error() string {
	return fmt.Sprintf("%s: retcode=%d", ErrOrderSubmit.Error(), e.Retcode)
}

func (e *OrderSubmitError) Unwrap() error {
	return ErrOrderSubmit
}
