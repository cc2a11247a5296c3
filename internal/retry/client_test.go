package retry

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torqfleet/botfleet/internal/broker"
	"github.com/torqfleet/botfleet/internal/util"
)

// fakeBroker is a scriptable broker.Broker double: SubmitMarket and Rates
// fail with a transient or permanent error for the first N calls, then
// succeed.
type fakeBroker struct {
	callCount int32

	successAfterN int
	transientErr  error
	permanentErr  error
}

var _ broker.Broker = (*fakeBroker)(nil)

func (f *fakeBroker) nextErr() error {
	n := atomic.AddInt32(&f.callCount, 1)
	if f.permanentErr != nil {
		return f.permanentErr
	}
	if f.successAfterN > 0 && int(n) < f.successAfterN {
		if f.transientErr != nil {
			return f.transientErr
		}
		return errors.New("connection reset by peer")
	}
	return nil
}

func (f *fakeBroker) Initialize(ctx context.Context, cfg broker.ConnectConfig) error { return nil }
func (f *fakeBroker) Connected() bool                                               { return true }
func (f *fakeBroker) Reconnect(ctx context.Context, retries int, delay time.Duration) bool {
	return true
}
func (f *fakeBroker) ResolveSymbol(ctx context.Context, requested string) (broker.SymbolInfo, error) {
	return broker.SymbolInfo{Name: requested}, nil
}
func (f *fakeBroker) SelectSymbol(ctx context.Context, resolved string) error { return nil }
func (f *fakeBroker) MarketOpen(ctx context.Context, requested string) bool  { return true }
func (f *fakeBroker) Rates(ctx context.Context, symbol string, tf util.Timeframe, count int) ([]broker.Bar, error) {
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return []broker.Bar{{Time: time.Now().UTC(), Close: 1.1}}, nil
}
func (f *fakeBroker) Positions(ctx context.Context, filter broker.PositionFilter) ([]broker.Position, error) {
	return nil, nil
}
func (f *fakeBroker) HistoryDeals(ctx context.Context, from, to time.Time) ([]broker.Deal, error) {
	return nil, nil
}
func (f *fakeBroker) SubmitMarket(ctx context.Context, req broker.MarketOrderRequest) (broker.OrderResult, error) {
	if err := f.nextErr(); err != nil {
		return broker.OrderResult{}, err
	}
	return broker.OrderResult{Retcode: broker.RetcodeDone, Ticket: 1001}, nil
}
func (f *fakeBroker) SubmitPending(ctx context.Context, req broker.PendingOrderRequest) (broker.OrderResult, error) {
	return broker.OrderResult{}, nil
}
func (f *fakeBroker) ModifySLTP(ctx context.Context, ticket int64, sl, tp *float64) error {
	return nil
}
func (f *fakeBroker) CloseByTicket(ctx context.Context, req broker.CloseRequest) broker.OrderResult {
	return broker.OrderResult{Retcode: broker.RetcodeDone, Ticket: req.Ticket}
}
func (f *fakeBroker) RemovePending(ctx context.Context, ticket int64) error { return nil }
func (f *fakeBroker) AccountInfo(ctx context.Context) (broker.AccountInfo, error) {
	return broker.AccountInfo{}, nil
}

func makeClient(t *testing.T, br broker.Broker, cfg Config) (*Client, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	c := NewClient(br, log.New(&buf, "", 0), cfg)
	return c, &buf
}

func fastConfig() Config {
	return Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: time.Second}
}

func TestNewClient_SanitizesBadConfig(t *testing.T) {
	c, _ := makeClient(t, &fakeBroker{}, Config{MaxRetries: -1, InitialBackoff: -1, MaxBackoff: -1, Timeout: -1})
	if c.config.MaxRetries != DefaultConfig.MaxRetries {
		t.Errorf("expected sanitized MaxRetries, got %d", c.config.MaxRetries)
	}
	if c.config.MaxBackoff < c.config.InitialBackoff {
		t.Errorf("expected MaxBackoff >= InitialBackoff after sanitization")
	}
}

func TestSubmitMarketWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	br := &fakeBroker{successAfterN: 3}
	c, _ := makeClient(t, br, fastConfig())

	result, err := c.SubmitMarketWithRetry(context.Background(), broker.MarketOrderRequest{})
	if err != nil {
		t.Fatalf("expected eventual success, got error: %v", err)
	}
	if result.Ticket != 1001 {
		t.Errorf("expected ticket 1001, got %d", result.Ticket)
	}
	if br.callCount != 3 {
		t.Errorf("expected 3 attempts, got %d", br.callCount)
	}
}

func TestSubmitMarketWithRetry_GivesUpOnPermanentError(t *testing.T) {
	br := &fakeBroker{permanentErr: errors.New("invalid volume")}
	c, _ := makeClient(t, br, fastConfig())

	_, err := c.SubmitMarketWithRetry(context.Background(), broker.MarketOrderRequest{})
	if err == nil {
		t.Fatal("expected error for permanent failure")
	}
	if br.callCount != 1 {
		t.Errorf("expected exactly 1 attempt for a non-transient error, got %d", br.callCount)
	}
}

func TestSubmitMarketWithRetry_ExhaustsBudget(t *testing.T) {
	br := &fakeBroker{successAfterN: 100}
	c, _ := makeClient(t, br, fastConfig())

	_, err := c.SubmitMarketWithRetry(context.Background(), broker.MarketOrderRequest{})
	if err == nil {
		t.Fatal("expected error after exhausting retry budget")
	}
	if int(br.callCount) != fastConfig().MaxRetries+1 {
		t.Errorf("expected %d attempts, got %d", fastConfig().MaxRetries+1, br.callCount)
	}
}

func TestRatesWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	br := &fakeBroker{successAfterN: 2}
	c, _ := makeClient(t, br, fastConfig())

	bars, err := c.RatesWithRetry(context.Background(), "EURUSD", util.M5, 10)
	if err != nil {
		t.Fatalf("expected eventual success, got error: %v", err)
	}
	if len(bars) != 1 {
		t.Errorf("expected 1 bar, got %d", len(bars))
	}
}
