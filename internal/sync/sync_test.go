package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torqfleet/botfleet/internal/broker"
	"github.com/torqfleet/botfleet/internal/models"
	"github.com/torqfleet/botfleet/internal/store"
	"github.com/torqfleet/botfleet/internal/util"
)

// fakeDealBroker implements broker.Broker with only HistoryDeals wired;
// every other method is unused by the Service under test.
type fakeDealBroker struct {
	deals []broker.Deal
	err   error
}

var _ broker.Broker = (*fakeDealBroker)(nil)

func (f *fakeDealBroker) Initialize(ctx context.Context, cfg broker.ConnectConfig) error { return nil }
func (f *fakeDealBroker) Connected() bool                                               { return true }
func (f *fakeDealBroker) Reconnect(ctx context.Context, retries int, delay time.Duration) bool {
	return true
}
func (f *fakeDealBroker) ResolveSymbol(ctx context.Context, requested string) (broker.SymbolInfo, error) {
	return broker.SymbolInfo{}, nil
}
func (f *fakeDealBroker) SelectSymbol(ctx context.Context, resolved string) error { return nil }
func (f *fakeDealBroker) MarketOpen(ctx context.Context, requested string) bool  { return true }
func (f *fakeDealBroker) Rates(ctx context.Context, symbol string, tf util.Timeframe, count int) ([]broker.Bar, error) {
	return nil, nil
}
func (f *fakeDealBroker) Positions(ctx context.Context, filter broker.PositionFilter) ([]broker.Position, error) {
	return nil, nil
}
func (f *fakeDealBroker) HistoryDeals(ctx context.Context, from, to time.Time) ([]broker.Deal, error) {
	return f.deals, f.err
}
func (f *fakeDealBroker) SubmitMarket(ctx context.Context, req broker.MarketOrderRequest) (broker.OrderResult, error) {
	return broker.OrderResult{}, nil
}
func (f *fakeDealBroker) SubmitPending(ctx context.Context, req broker.PendingOrderRequest) (broker.OrderResult, error) {
	return broker.OrderResult{}, nil
}
func (f *fakeDealBroker) ModifySLTP(ctx context.Context, ticket int64, sl, tp *float64) error {
	return nil
}
func (f *fakeDealBroker) CloseByTicket(ctx context.Context, req broker.CloseRequest) broker.OrderResult {
	return broker.OrderResult{}
}
func (f *fakeDealBroker) RemovePending(ctx context.Context, ticket int64) error { return nil }
func (f *fakeDealBroker) AccountInfo(ctx context.Context) (broker.AccountInfo, error) {
	return broker.AccountInfo{}, nil
}

func mustStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSyncNow_CreatesClosedTradeFromRoundTripDeals(t *testing.T) {
	st := mustStore(t)
	now := time.Now().UTC()

	b := &fakeDealBroker{deals: []broker.Deal{
		{PositionID: 501, OrderID: 9001, Time: now.Add(-time.Hour), Price: 1.1000, Volume: 0.1, Type: models.ActionBuy, Magic: 1, Symbol: "EURUSD"},
		{PositionID: 501, OrderID: 9002, Time: now, Price: 1.1050, Profit: 50, Comment: "[tp] close", Magic: 1, Symbol: "EURUSD"},
	}}

	svc := New(b, st)
	svc.SyncNow(context.Background())

	got, err := st.GetTradeByTicket(9001)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.TradeStatusClosed, got.Status)
	assert.Equal(t, models.CloseReasonTP, got.CloseReason)
	assert.Equal(t, "Synced_EURUSD_M1", got.BotID)
	require.NotNil(t, got.ProfitPips)
	assert.InDelta(t, 50.0, *got.ProfitPips, 0.01)
}

func TestSyncNow_SkipsPositionIDZero(t *testing.T) {
	st := mustStore(t)
	b := &fakeDealBroker{deals: []broker.Deal{
		{PositionID: 0, OrderID: 1, Time: time.Now(), Symbol: "EURUSD"},
	}}

	svc := New(b, st)
	svc.SyncNow(context.Background())

	all, err := st.ListAllTrades(10)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSyncNow_UpdatesExistingOpenedTradeOnExitDeal(t *testing.T) {
	st := mustStore(t)
	now := time.Now().UTC()

	_, err := st.InsertTrade(models.Trade{
		Ticket: 7001, BotID: "SimpleTimeStrategy_EURUSD_M15", Symbol: "EURUSD",
		Action: models.ActionBuy, EntryPrice: 1.2000, Volume: 0.1,
		OpenedAt: now.Add(-2 * time.Hour), Status: models.TradeStatusOpened,
		Commission: -2.5, Swap: -0.75,
	})
	require.NoError(t, err)

	b := &fakeDealBroker{deals: []broker.Deal{
		{PositionID: 777, OrderID: 7001, Time: now.Add(-2 * time.Hour), Price: 1.2000, Type: models.ActionBuy, Symbol: "EURUSD"},
		{PositionID: 777, OrderID: 7002, Time: now, Price: 1.2030, Profit: 30, Comment: "sl hit [sl]", Symbol: "EURUSD", Commission: -2.5, Swap: -0.25},
	}}

	svc := New(b, st)
	svc.SyncNow(context.Background())

	got, err := st.GetTradeByTicket(7001)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.TradeStatusClosed, got.Status)
	assert.Equal(t, models.CloseReasonSL, got.CloseReason)
	assert.InDelta(t, -5.0, got.Commission, 0.0001, "commission should accumulate entry + exit, not overwrite")
	assert.InDelta(t, -1.0, got.Swap, 0.0001, "swap should accumulate entry + exit, not overwrite")
}

func TestSyncNow_LeavesSingleDealPositionOpen(t *testing.T) {
	st := mustStore(t)
	b := &fakeDealBroker{deals: []broker.Deal{
		{PositionID: 900, OrderID: 9100, Time: time.Now(), Price: 1.1, Type: models.ActionBuy, Symbol: "EURUSD", Magic: 10},
	}}

	svc := New(b, st)
	svc.SyncNow(context.Background())

	got, err := st.GetTradeByTicket(9100)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.TradeStatusOpened, got.Status)
	assert.Equal(t, "MeanReversionStrategy", got.StrategyName)
}

func TestSyncNow_HistoryDealsErrorDoesNotPanic(t *testing.T) {
	st := mustStore(t)
	b := &fakeDealBroker{err: assert.AnError}

	svc := New(b, st)
	svc.SyncNow(context.Background())

	assert.True(t, svc.LastSyncTime().IsZero())
}

func TestStartStop_RunsAndStopsCleanly(t *testing.T) {
	st := mustStore(t)
	b := &fakeDealBroker{}
	svc := New(b, st, WithInterval(10*time.Millisecond))

	svc.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	svc.Stop()

	assert.False(t, svc.LastSyncTime().IsZero())
}
