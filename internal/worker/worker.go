package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torqfleet/botfleet/internal/broker"
	"github.com/torqfleet/botfleet/internal/eventbus"
	"github.com/torqfleet/botfleet/internal/models"
	"github.com/torqfleet/botfleet/internal/strategy"
	"github.com/torqfleet/botfleet/internal/tradelog"
	"github.com/torqfleet/botfleet/internal/util"
)

// maxConsecutiveErrors is the failure budget spec.md §4.7 gives broker and
// strategy errors before a worker transitions itself to stopped.
const maxConsecutiveErrors = 5

const (
	pauseCheckInterval = 1 * time.Second
	reconnectRetries   = 3
	reconnectDelay     = 5 * time.Second
	logWaitingEveryNth = 5
)

// healthCheckBackoff and ratesRetryBackoff are vars rather than consts so
// tests can shrink them instead of waiting out the real budget.
var (
	healthCheckBackoff = 10 * time.Second
	ratesRetryBackoff  = 5 * time.Second
)

// Config is the static configuration a Bot Worker is launched with. It is
// reused verbatim by Fleet Controller's restart_bot.
type Config struct {
	Strategy        strategy.Strategy
	Symbol          string
	Timeframe       util.Timeframe
	IntervalSeconds int
	Window          int
}

// BotID derives the default bot-id `Strategy_Symbol_Timeframe`.
func (c Config) BotID() string {
	return fmt.Sprintf("%s_%s_%s", c.Strategy.Parameters().Name, c.Symbol, c.Timeframe.Name())
}

func (c Config) interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c Config) window() int {
	if c.Window <= 0 {
		return 100
	}
	return c.Window
}

// Worker is the C8 Bot Worker: the execution loop for a single strategy
// instance bound to one (symbol, timeframe, interval, window) tuple.
//
// One Worker is launched per registered bot by the Fleet Controller via
// Run, in its own goroutine. All exported methods are safe to call from
// any goroutine.
type Worker struct {
	cfg    Config
	botID  string
	broker broker.Broker
	tlog   *tradelog.Logger
	bus    *eventbus.Bus
	logger *log.Logger

	smMu sync.Mutex
	sm   *StateMachine

	pauseRequested atomic.Bool
	stopRequested  atomic.Bool
	doneCh         chan struct{}
	errCount       int
}

// New constructs a Worker ready for Run. logger defaults to log.Default()
// when nil.
func New(cfg Config, br broker.Broker, tlog *tradelog.Logger, bus *eventbus.Bus, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		cfg:    cfg,
		botID:  cfg.BotID(),
		broker: br,
		tlog:   tlog,
		bus:    bus,
		logger: logger,
		sm:     NewStateMachine(),
		doneCh: make(chan struct{}),
	}
}

// BotID returns this worker's derived bot-id.
func (w *Worker) BotID() string { return w.botID }

// MagicNumber returns the bound strategy's magic number.
func (w *Worker) MagicNumber() int { return w.cfg.Strategy.MagicNumber() }

// Symbol returns the traded symbol.
func (w *Worker) Symbol() string { return w.cfg.Symbol }

// StrategyName returns the bound strategy's class name.
func (w *Worker) StrategyName() string { return w.cfg.Strategy.Parameters().Name }

// Config returns the worker's launch configuration, for restart_bot reuse.
func (w *Worker) Config() Config { return w.cfg }

// State reports the worker's current lifecycle state.
func (w *Worker) State() State {
	w.smMu.Lock()
	defer w.smMu.Unlock()
	return w.sm.Current()
}

// IsAlive reports whether the run loop is still executing.
func (w *Worker) IsAlive() bool {
	select {
	case <-w.doneCh:
		return false
	default:
		return true
	}
}

// Pause requests the worker suspend at its next loop edge (within 1s).
// Idempotent.
func (w *Worker) Pause() {
	w.pauseRequested.Store(true)
}

// Resume clears a pending or active pause. Idempotent.
func (w *Worker) Resume() {
	w.pauseRequested.Store(false)
}

// Stop requests cooperative shutdown. It does not block; call Join to
// wait for the loop to actually exit.
func (w *Worker) Stop() {
	w.stopRequested.Store(true)
}

// Join blocks until the run loop exits or timeout elapses, reporting
// which happened.
func (w *Worker) Join(timeout time.Duration) bool {
	select {
	case <-w.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (w *Worker) transition(to State, condition string) {
	w.smMu.Lock()
	defer w.smMu.Unlock()
	if err := w.sm.Transition(to, condition); err != nil {
		w.logger.Printf("worker %s: %v", w.botID, err)
	}
}

func (w *Worker) currentState() State {
	w.smMu.Lock()
	defer w.smMu.Unlock()
	return w.sm.Current()
}

// sleep pauses for d, checking for a stop or pause request every second so
// cancellation is honored within one second as spec.md §5 requires. A
// pause requested mid-sleep is entered at once via waitWhilePaused, and
// the rest of d is slept after resume. It returns false if the sleep was
// cut short by a stop request or context cancellation.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if w.stopRequested.Load() {
			return false
		}
		if w.pauseRequested.Load() && !w.waitWhilePaused(ctx) {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		wait := remaining
		if wait > time.Second {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return false
		}
	}
}

// waitWhilePaused blocks while a pause is in effect, transitioning the
// state machine to paused on entry and back to running on exit. It
// returns false if a stop request arrives while waiting.
func (w *Worker) waitWhilePaused(ctx context.Context) bool {
	entered := false
	for w.pauseRequested.Load() {
		if w.stopRequested.Load() {
			return false
		}
		if !entered {
			w.transition(StatePaused, "paused")
			w.bus.Emit(models.EventBotPaused, map[string]any{"bot_id": w.botID}, w.botID)
			entered = true
		}
		select {
		case <-time.After(pauseCheckInterval):
		case <-ctx.Done():
			return false
		}
	}
	if entered {
		w.transition(StateRunning, "resumed")
		w.bus.Emit(models.EventBotResumed, map[string]any{"bot_id": w.botID}, w.botID)
	}
	return !w.stopRequested.Load()
}

func (w *Worker) stop() {
	w.transition(StateStopped, "stopped")
}

// Run executes the worker's iteration loop until ctx is canceled or Stop
// is called. It is meant to be launched in its own goroutine by the Fleet
// Controller; it closes its done channel on return so Join/IsAlive can
// observe completion.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.doneCh)

	w.bus.Emit(models.EventBotStarted, map[string]any{
		"bot_id": w.botID, "symbol": w.cfg.Symbol, "magic": w.MagicNumber(),
	}, w.botID)
	defer w.bus.Emit(models.EventBotStopped, map[string]any{"bot_id": w.botID}, w.botID)

	firstIteration := true
	waitingTicks := 0

	for {
		// 1. Pause gate.
		if !w.waitWhilePaused(ctx) {
			w.stop()
			return
		}
		// 2. Stop check.
		if w.stopRequested.Load() {
			w.stop()
			return
		}

		if firstIteration {
			w.transition(StateRunning, "started")
			firstIteration = false
		}

		// 3. Health check.
		if !w.broker.Connected() {
			if !w.broker.Reconnect(ctx, reconnectRetries, reconnectDelay) {
				w.errCount++
				w.bus.Emit(models.EventConnectionLost, map[string]any{"bot_id": w.botID, "consecutive_errors": w.errCount}, w.botID)
				if w.errCount >= maxConsecutiveErrors {
					w.bus.Emit(models.EventBotError, map[string]any{"bot_id": w.botID, "reason": "connection_lost"}, w.botID)
					w.stop()
					return
				}
				if !w.sleep(ctx, healthCheckBackoff) {
					w.stop()
					return
				}
				continue
			}
			w.bus.Emit(models.EventConnectionRestored, map[string]any{"bot_id": w.botID}, w.botID)
		}

		// 4. Market-open gate.
		if !w.broker.MarketOpen(ctx, w.cfg.Symbol) {
			if w.currentState() != StateWaitingMarket {
				w.transition(StateWaitingMarket, "market_closed")
				w.bus.Emit(models.EventMarketClosed, map[string]any{"bot_id": w.botID, "symbol": w.cfg.Symbol}, w.botID)
				waitingTicks = 0
			}
			waitingTicks++
			if waitingTicks == 1 || waitingTicks%logWaitingEveryNth == 0 {
				w.logger.Printf("bot %s: market closed for %s, waiting", w.botID, w.cfg.Symbol)
			}
			if !w.sleep(ctx, w.cfg.interval()) {
				w.stop()
				return
			}
			continue
		}

		// 5. Resume to running.
		if w.currentState() == StateWaitingMarket {
			w.transition(StateRunning, "market_reopened")
			w.bus.Emit(models.EventMarketOpened, map[string]any{"bot_id": w.botID, "symbol": w.cfg.Symbol}, w.botID)
			waitingTicks = 0
		}

		// 6. Fetch bars.
		bars, err := w.broker.Rates(ctx, w.cfg.Symbol, w.cfg.Timeframe, w.cfg.window())
		if err != nil {
			w.errCount++
			w.logger.Printf("bot %s: rates fetch failed (%d/%d): %v", w.botID, w.errCount, maxConsecutiveErrors, err)
			if w.errCount >= maxConsecutiveErrors {
				w.bus.Emit(models.EventBotError, map[string]any{"bot_id": w.botID, "reason": "rates_fetch_failed"}, w.botID)
				w.stop()
				return
			}
			if !w.sleep(ctx, ratesRetryBackoff) {
				w.stop()
				return
			}
			continue
		}
		if len(bars) == 0 {
			if !w.sleep(ctx, w.cfg.interval()) {
				w.stop()
				return
			}
			continue
		}

		// 7. Signal.
		idx := len(bars) - 1
		sig := w.cfg.Strategy.GenerateSignal(bars, idx)
		priceAtSignal := bars[idx].Close
		w.bus.Emit(models.EventSignalGenerated, map[string]any{
			"bot_id": w.botID, "symbol": w.cfg.Symbol, "signal": string(sig), "price": priceAtSignal,
		}, w.botID)

		executed := false
		var executionTicket *int64
		skipReason := models.SkipReasonNone

		// 8. Hold path falls straight through to the signal log / sleep.
		if sig == models.SignalBuy || sig == models.SignalSell {
			executed, executionTicket, skipReason = w.actOnSignal(ctx, sig, bars[idx])
		}

		w.logSignal(sig, priceAtSignal, executed, executionTicket, skipReason)

		// A full iteration without a broker/strategy fault resets the
		// error budget.
		w.errCount = 0

		// 14. Sleep.
		if !w.sleep(ctx, w.cfg.interval()) {
			w.stop()
			return
		}
	}
}

// actOnSignal implements steps 9-13: the market re-check, position
// policy, sizing/SL-TP, and order submission for a buy/sell signal. It
// returns whether an order was opened, its ticket if so, and the skip
// reason if not.
func (w *Worker) actOnSignal(ctx context.Context, sig models.SignalType, signalBar broker.Bar) (bool, *int64, models.SkipReason) {
	action := models.ActionBuy
	if sig == models.SignalSell {
		action = models.ActionSell
	}

	// 9. Market re-check.
	if !w.broker.MarketOpen(ctx, w.cfg.Symbol) {
		w.logger.Printf("bot %s: skip, market closed mid-cycle", w.botID)
		return false, nil, models.SkipReasonMarketClosed
	}

	params := w.cfg.Strategy.Parameters()
	magic := w.MagicNumber()

	positions, err := w.broker.Positions(ctx, broker.PositionFilter{Symbol: w.cfg.Symbol, Magic: &magic})
	if err != nil {
		w.logger.Printf("bot %s: positions query failed: %v", w.botID, err)
		return false, nil, models.SkipReasonMarketClosed
	}

	// 10. Position policy.
	if params.CloseBeforeOpen {
		for _, p := range positions {
			w.closePosition(ctx, p)
		}
	} else if len(positions) >= params.MaxOpenPositions {
		w.logger.Printf("bot %s: skip, max open positions reached (%d)", w.botID, params.MaxOpenPositions)
		return false, nil, models.SkipReasonMaxPositions
	}

	// 11. Sizing & risk.
	account, err := w.broker.AccountInfo(ctx)
	if err != nil {
		w.logger.Printf("bot %s: account_info failed: %v", w.botID, err)
		return false, nil, models.SkipReasonNone
	}
	entryPrice := signalBar.Close
	volume := w.cfg.Strategy.PositionSize(w.cfg.Symbol, account.Equity, entryPrice)
	sl, tp := w.cfg.Strategy.SLTP(w.cfg.Symbol, action, entryPrice)

	// 12. Submit.
	result, err := w.broker.SubmitMarket(ctx, broker.MarketOrderRequest{
		Symbol:  w.cfg.Symbol,
		Action:  action,
		Volume:  volume,
		SL:      sl,
		TP:      tp,
		Magic:   magic,
		Comment: w.StrategyName(),
		Fill:    broker.FillOrKill,
	})
	if err != nil || !result.Done() {
		w.logger.Printf("bot %s: order submit failed: %v", w.botID, err)
		return false, nil, models.SkipReasonNone
	}

	// 13. On success.
	if _, err := w.tlog.LogOpened(models.Trade{
		Ticket:       result.Ticket,
		MagicNumber:  magic,
		BotID:        w.botID,
		StrategyName: w.StrategyName(),
		Symbol:       w.cfg.Symbol,
		Action:       action,
		Volume:       result.Volume,
		EntryPrice:   result.Price,
		SLPrice:      sl,
		TPPrice:      tp,
	}); err != nil {
		w.logger.Printf("bot %s: failed to log opened trade for ticket %d: %v", w.botID, result.Ticket, err)
	}
	w.bus.Emit(models.EventTradeOpened, map[string]any{
		"bot_id": w.botID, "ticket": result.Ticket, "symbol": w.cfg.Symbol, "action": string(action),
		"volume": result.Volume, "price": result.Price,
	}, w.botID)

	ticket := result.Ticket
	return true, &ticket, models.SkipReasonNone
}

func (w *Worker) closePosition(ctx context.Context, p broker.Position) {
	result := w.broker.CloseByTicket(ctx, broker.CloseRequest{
		Ticket:       p.Ticket,
		Symbol:       p.Symbol,
		Volume:       p.Volume,
		PositionType: p.Type,
	})
	if !result.Done() {
		w.logger.Printf("bot %s: close_before_open failed to close ticket %d", w.botID, p.Ticket)
		return
	}
	closed, err := w.tlog.LogClosed(p.Ticket, p.Symbol, p.Type, result.Price, p.Profit, 0, 0, time.Now().UTC(), models.CloseReasonSignal)
	if err != nil {
		w.logger.Printf("bot %s: log closed failed for ticket %d: %v", w.botID, p.Ticket, err)
	}
	if closed {
		w.bus.Emit(models.EventTradeClosed, map[string]any{
			"bot_id": w.botID, "ticket": p.Ticket, "symbol": p.Symbol, "reason": string(models.CloseReasonSignal),
		}, w.botID)
	}
}

func (w *Worker) logSignal(sig models.SignalType, price float64, executed bool, ticket *int64, skip models.SkipReason) {
	if _, err := w.tlog.LogSignal(models.Signal{
		BotID:           w.botID,
		StrategyName:    w.StrategyName(),
		Symbol:          w.cfg.Symbol,
		Timeframe:       w.cfg.Timeframe.Name(),
		SignalType:      sig,
		PriceAtSignal:   price,
		WasExecuted:     executed,
		ExecutionTicket: ticket,
		SkipReason:      skip,
	}); err != nil {
		w.logger.Printf("bot %s: log signal failed: %v", w.botID, err)
	}
}
