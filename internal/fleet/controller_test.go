package fleet

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torqfleet/botfleet/internal/broker"
	"github.com/torqfleet/botfleet/internal/eventbus"
	"github.com/torqfleet/botfleet/internal/globalstate"
	"github.com/torqfleet/botfleet/internal/models"
	"github.com/torqfleet/botfleet/internal/store"
	"github.com/torqfleet/botfleet/internal/strategy"
	"github.com/torqfleet/botfleet/internal/util"
	"github.com/torqfleet/botfleet/internal/worker"
)

// fakeBroker is a minimal broker.Broker double: always connected, market
// open, and returning one bar so a worker it drives can cycle freely.
type fakeBroker struct {
	mu         sync.Mutex
	marketOpen bool
}

var _ broker.Broker = (*fakeBroker)(nil)

func newFakeBroker() *fakeBroker { return &fakeBroker{marketOpen: true} }

func (f *fakeBroker) Initialize(ctx context.Context, cfg broker.ConnectConfig) error { return nil }
func (f *fakeBroker) Connected() bool                                               { return true }
func (f *fakeBroker) Reconnect(ctx context.Context, retries int, delay time.Duration) bool {
	return true
}
func (f *fakeBroker) ResolveSymbol(ctx context.Context, requested string) (broker.SymbolInfo, error) {
	return broker.SymbolInfo{Name: requested, Tradable: true}, nil
}
func (f *fakeBroker) SelectSymbol(ctx context.Context, resolved string) error { return nil }
func (f *fakeBroker) MarketOpen(ctx context.Context, requested string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marketOpen
}
func (f *fakeBroker) Rates(ctx context.Context, symbol string, tf util.Timeframe, count int) ([]broker.Bar, error) {
	return []broker.Bar{{Time: time.Now().UTC(), Close: 1.1}}, nil
}
func (f *fakeBroker) Positions(ctx context.Context, filter broker.PositionFilter) ([]broker.Position, error) {
	return nil, nil
}
func (f *fakeBroker) HistoryDeals(ctx context.Context, from, to time.Time) ([]broker.Deal, error) {
	return nil, nil
}
func (f *fakeBroker) SubmitMarket(ctx context.Context, req broker.MarketOrderRequest) (broker.OrderResult, error) {
	return broker.OrderResult{Retcode: broker.RetcodeDone, Ticket: 1, Price: req.Volume}, nil
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
	return broker.AccountInfo{Equity: 10000, Balance: 10000}, nil
}

// fakeStrategy is a bare-bones Strategy double with a settable magic
// number and class name, used to exercise the controller's registration
// rules independent of any real strategy's signal logic.
type fakeStrategy struct {
	magic   int
	name    string
	symbols []string
}

var _ strategy.Strategy = (*fakeStrategy)(nil)

func (s *fakeStrategy) MagicNumber() int { return s.magic }
func (s *fakeStrategy) GenerateSignal(bars []broker.Bar, currentIndex int) models.SignalType {
	return models.SignalHold
}
func (s *fakeStrategy) Parameters() strategy.Parameters {
	return strategy.Parameters{Name: s.name, Symbols: s.symbols, MaxOpenPositions: 1}
}
func (s *fakeStrategy) PositionSize(symbol string, equity, entryPrice float64) float64 { return 0.01 }
func (s *fakeStrategy) SLTP(symbol string, action models.Action, entryPrice float64) (*float64, *float64) {
	return nil, nil
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New()
	state := globalstate.New()

	ctrl := New(newFakeBroker(), st, bus, state,
		WithIPCPaths(filepath.Join(t.TempDir(), "state.json"), filepath.Join(t.TempDir(), "cmd.json")))
	ctrl.Start(context.Background())
	t.Cleanup(ctrl.Shutdown)
	return ctrl
}

func TestController_AddBot_RejectsDuplicateBotID(t *testing.T) {
	ctrl := newTestController(t)
	cfg := worker.Config{Strategy: &fakeStrategy{magic: 1, name: "Alpha"}, Symbol: "EURUSD", Timeframe: util.M5, IntervalSeconds: 1, Window: 5}

	require.NoError(t, ctrl.AddBot(cfg))
	err := ctrl.AddBot(cfg)
	require.Error(t, err)
}

func TestController_AddBot_RejectsMagicCollisionAcrossStrategyClasses(t *testing.T) {
	ctrl := newTestController(t)
	first := worker.Config{Strategy: &fakeStrategy{magic: 5, name: "Alpha"}, Symbol: "EURUSD", Timeframe: util.M5, IntervalSeconds: 1, Window: 5}
	require.NoError(t, ctrl.AddBot(first))

	collidingClass := worker.Config{Strategy: &fakeStrategy{magic: 5, name: "Beta"}, Symbol: "GBPUSD", Timeframe: util.M5, IntervalSeconds: 1, Window: 5}
	err := ctrl.AddBot(collidingClass)
	require.Error(t, err)

	sameClassDifferentSymbol := worker.Config{Strategy: &fakeStrategy{magic: 5, name: "Alpha"}, Symbol: "GBPUSD", Timeframe: util.M5, IntervalSeconds: 1, Window: 5}
	require.NoError(t, ctrl.AddBot(sameClassDifferentSymbol))
}

func TestController_PauseResumeStopRestart(t *testing.T) {
	ctrl := newTestController(t)
	cfg := worker.Config{Strategy: &fakeStrategy{magic: 2, name: "Alpha"}, Symbol: "EURUSD", Timeframe: util.M5, IntervalSeconds: 1, Window: 5}
	require.NoError(t, ctrl.AddBot(cfg))
	botID := cfg.BotID()

	require.True(t, ctrl.PauseBot(botID))
	require.True(t, ctrl.PauseBot(botID)) // idempotent
	require.Eventually(t, func() bool {
		rec, ok := ctrl.BotStatus(botID)
		return ok && rec.Status == models.BotStatusPaused
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, ctrl.ResumeBot(botID))
	require.True(t, ctrl.ResumeBot(botID)) // idempotent
	require.Eventually(t, func() bool {
		rec, ok := ctrl.BotStatus(botID)
		return ok && rec.Status != models.BotStatusPaused
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, ctrl.StopBot(botID))
	rec, ok := ctrl.BotStatus(botID)
	require.True(t, ok)
	assert.Equal(t, models.BotStatusStopped, rec.Status)
	assert.False(t, rec.IsAlive)

	require.True(t, ctrl.RestartBot(botID))
	rec, ok = ctrl.BotStatus(botID)
	require.True(t, ok)
	assert.True(t, rec.IsAlive)
	assert.NotEqual(t, models.BotStatusStopped, rec.Status)

	assert.False(t, ctrl.PauseBot("no-such-bot"))
	assert.False(t, ctrl.StopBot("no-such-bot"))
	assert.False(t, ctrl.RestartBot("no-such-bot"))
}

func TestController_GlobalPauseFlag(t *testing.T) {
	ctrl := newTestController(t)
	cfgA := worker.Config{Strategy: &fakeStrategy{magic: 11, name: "Alpha"}, Symbol: "EURUSD", Timeframe: util.M5, IntervalSeconds: 1, Window: 5}
	cfgB := worker.Config{Strategy: &fakeStrategy{magic: 12, name: "Beta"}, Symbol: "GBPUSD", Timeframe: util.M5, IntervalSeconds: 1, Window: 5}
	require.NoError(t, ctrl.AddBot(cfgA))
	require.NoError(t, ctrl.AddBot(cfgB))

	ctrl.PauseBot(cfgA.BotID())
	require.Never(t, func() bool { return ctrl.state.IsGloballyPaused() }, 300*time.Millisecond, 20*time.Millisecond)

	ctrl.PauseBot(cfgB.BotID())
	require.Eventually(t, func() bool { return ctrl.state.IsGloballyPaused() }, 2*time.Second, 10*time.Millisecond)

	ctrl.ResumeBot(cfgA.BotID())
	require.Eventually(t, func() bool { return !ctrl.state.IsGloballyPaused() }, 2*time.Second, 10*time.Millisecond)
}

func TestController_SnapshotRoundTrip(t *testing.T) {
	ctrl := newTestController(t)
	cfg := worker.Config{Strategy: &fakeStrategy{magic: 21, name: "Alpha"}, Symbol: "EURUSD", Timeframe: util.M5, IntervalSeconds: 1, Window: 5}
	require.NoError(t, ctrl.AddBot(cfg))

	snap, err := ReadSnapshot(ctrl.statePath)
	require.NoError(t, err)
	require.Len(t, snap.Bots, 1)
	assert.Equal(t, cfg.BotID(), snap.Bots[0].BotID)
}

func TestController_CommandQueueDispatch(t *testing.T) {
	ctrl := newTestController(t)
	cfg := worker.Config{Strategy: &fakeStrategy{magic: 31, name: "Alpha"}, Symbol: "EURUSD", Timeframe: util.M5, IntervalSeconds: 1, Window: 5}
	require.NoError(t, ctrl.AddBot(cfg))

	require.NoError(t, QueueCommand(ctrl.cmdPath, models.Command{Action: models.CommandPauseAll}))
	ctrl.processQueuedCommands()

	require.Eventually(t, func() bool {
		rec, ok := ctrl.BotStatus(cfg.BotID())
		return ok && rec.Status == models.BotStatusPaused
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, QueueCommand(ctrl.cmdPath, models.Command{Action: models.CommandResumeAll}))
	ctrl.processQueuedCommands()
	require.Eventually(t, func() bool {
		rec, ok := ctrl.BotStatus(cfg.BotID())
		return ok && rec.Status != models.BotStatusPaused
	}, 2*time.Second, 10*time.Millisecond)
}
