package broker

import (
	"context"
	"time"

	"github.com/torqfleet/botfleet/internal/models"
	"github.com/torqfleet/botfleet/internal/util"
)

// Broker is the abstract contract to a trading terminal.
// Implementations must be safe for concurrent calls; reconnect
// serialization across callers is the Fleet Controller's job, not the
// Broker's.
type Broker interface {
	// Initialize connects with bounded retries; fails with ErrConnection
	// if every attempt is exhausted.
	Initialize(ctx context.Context, cfg ConnectConfig) error
	// Connected is a cheap probe. It must never reconnect implicitly.
	Connected() bool
	// Reconnect shuts down the current session and re-establishes the
	// connection with bounded retries, reporting whether it succeeded.
	// Calling it while already connected also drops and re-establishes
	// the session.
	Reconnect(ctx context.Context, retries int, delay time.Duration) bool

	// ResolveSymbol searches the broker's symbol universe for requested,
	// applying the ordered search.
	ResolveSymbol(ctx context.Context, requested string) (SymbolInfo, error)
	// SelectSymbol marks a resolved symbol visible in the terminal's
	// watchlist.
	SelectSymbol(ctx context.Context, resolved string) error
	// MarketOpen reports whether requested is currently tradable. It never
	// returns an error: any failure path resolves to false.
	MarketOpen(ctx context.Context, requested string) bool

	// Rates fetches count bars for symbol/timeframe, retrying transient
	// failures internally.
	Rates(ctx context.Context, symbol string, timeframe util.Timeframe, count int) ([]Bar, error)

	// Positions returns a fresh snapshot matching filter.
	Positions(ctx context.Context, filter PositionFilter) ([]Position, error)
	// HistoryDeals returns broker deals in [from, to].
	HistoryDeals(ctx context.Context, from, to time.Time) ([]Deal, error)

	SubmitMarket(ctx context.Context, req MarketOrderRequest) (OrderResult, error)
	SubmitPending(ctx context.Context, req PendingOrderRequest) (OrderResult, error)
	// ModifySLTP updates a position's stop loss / take profit. Either may
	// be nil to leave it unchanged.
	ModifySLTP(ctx context.Context, ticket int64, sl, tp *float64) error
	// CloseByTicket submits the opposite-direction deal that flattens
	// ticket. It returns a zero-value OrderResult rather than an error on
	// broker-side failure.
	CloseByTicket(ctx context.Context, req CloseRequest) OrderResult
	// RemovePending cancels a pending order.
	RemovePending(ctx context.Context, ticket int64) error

	AccountInfo(ctx context.Context) (AccountInfo, error)
}

// CloseRequest is the input to CloseByTicket.
type CloseRequest struct {
	Ticket       int64
	Symbol       string
	Volume       float64
	PositionType models.Action
}
