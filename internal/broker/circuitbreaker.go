package broker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/torqfleet/botfleet/internal/util"
)

// CircuitBreakerSettings configures the breaker wrapping a Broker. The
// zero value is not useful; use DefaultCircuitBreakerSettings or supply
// every field.
type CircuitBreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultCircuitBreakerSettings trips once at least five requests have
// been counted and at least half of them failed, with the counts cleared
// every minute while closed, and probes again after thirty seconds open.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.5,
	}
}

// CircuitBreakerBroker decorates a Broker so that a run of failures on the
// underlying terminal connection trips a breaker instead of letting every
// Bot Worker hammer a dead connection in lockstep.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerBroker wraps broker with DefaultCircuitBreakerSettings.
func NewCircuitBreakerBroker(broker Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, DefaultCircuitBreakerSettings())
}

// NewCircuitBreakerBrokerWithSettings wraps broker with explicit settings.
func NewCircuitBreakerBrokerWithSettings(broker Broker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	st := gobreaker.Settings{
		Name:        "broker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= settings.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
	}
	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// State exposes the underlying breaker state for observability.
func (c *CircuitBreakerBroker) State() gobreaker.State {
	return c.breaker.State()
}

var _ Broker = (*CircuitBreakerBroker)(nil)

func (c *CircuitBreakerBroker) Initialize(ctx context.Context, cfg ConnectConfig) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.broker.Initialize(ctx, cfg)
	})
	return err
}

// Connected bypasses the breaker: it's a cheap local probe, not a call to
// the terminal.
func (c *CircuitBreakerBroker) Connected() bool {
	return c.broker.Connected()
}

// Reconnect bypasses the breaker too — it exists specifically to recover
// from the condition that trips it.
func (c *CircuitBreakerBroker) Reconnect(ctx context.Context, retries int, delay time.Duration) bool {
	return c.broker.Reconnect(ctx, retries, delay)
}

func (c *CircuitBreakerBroker) ResolveSymbol(ctx context.Context, requested string) (SymbolInfo, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.broker.ResolveSymbol(ctx, requested)
	})
	if err != nil {
		return SymbolInfo{}, err
	}
	return result.(SymbolInfo), nil
}

func (c *CircuitBreakerBroker) SelectSymbol(ctx context.Context, resolved string) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.broker.SelectSymbol(ctx, resolved)
	})
	return err
}

// MarketOpen never surfaces a breaker error: a tripped breaker simply
// reads as "market not open", matching the no-error contract of Broker.
func (c *CircuitBreakerBroker) MarketOpen(ctx context.Context, requested string) bool {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.broker.MarketOpen(ctx, requested), nil
	})
	if err != nil {
		return false
	}
	return result.(bool)
}

func (c *CircuitBreakerBroker) Rates(ctx context.Context, symbol string, timeframe util.Timeframe, count int) ([]Bar, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.broker.Rates(ctx, symbol, timeframe, count)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Bar), nil
}

func (c *CircuitBreakerBroker) Positions(ctx context.Context, filter PositionFilter) ([]Position, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.broker.Positions(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Position), nil
}

func (c *CircuitBreakerBroker) HistoryDeals(ctx context.Context, from, to time.Time) ([]Deal, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.broker.HistoryDeals(ctx, from, to)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Deal), nil
}

func (c *CircuitBreakerBroker) SubmitMarket(ctx context.Context, req MarketOrderRequest) (OrderResult, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.broker.SubmitMarket(ctx, req)
	})
	if err != nil {
		return OrderResult{}, err
	}
	return result.(OrderResult), nil
}

func (c *CircuitBreakerBroker) SubmitPending(ctx context.Context, req PendingOrderRequest) (OrderResult, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.broker.SubmitPending(ctx, req)
	})
	if err != nil {
		return OrderResult{}, err
	}
	return result.(OrderResult), nil
}

func (c *CircuitBreakerBroker) ModifySLTP(ctx context.Context, ticket int64, sl, tp *float64) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.broker.ModifySLTP(ctx, ticket, sl, tp)
	})
	return err
}

// CloseByTicket never surfaces a breaker error either, for the same
// reason Broker's own contract returns a zero-value OrderResult instead
// of an error on failure.
func (c *CircuitBreakerBroker) CloseByTicket(ctx context.Context, req CloseRequest) OrderResult {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.broker.CloseByTicket(ctx, req), nil
	})
	if err != nil {
		return OrderResult{}
	}
	return result.(OrderResult)
}

func (c *CircuitBreakerBroker) RemovePending(ctx context.Context, ticket int64) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.broker.RemovePending(ctx, ticket)
	})
	return err
}

func (c *CircuitBreakerBroker) AccountInfo(ctx context.Context) (AccountInfo, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.broker.AccountInfo(ctx)
	})
	if err != nil {
		return AccountInfo{}, err
	}
	return result.(AccountInfo), nil
}
