// Package fleet implements the C9 Fleet Controller: the registry and
// scheduler of Bot Workers. It enforces bot-id and magic-number
// uniqueness, owns the Trade Sync Service, derives the global-pause
// flag, and maintains the IPC command-queue/state-snapshot files that
// let an external host (dashboard, CLI shell) drive the fleet without
// linking against it.
package fleet

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/torqfleet/botfleet/internal/broker"
	"github.com/torqfleet/botfleet/internal/eventbus"
	"github.com/torqfleet/botfleet/internal/globalstate"
	"github.com/torqfleet/botfleet/internal/models"
	"github.com/torqfleet/botfleet/internal/store"
	sync_ "github.com/torqfleet/botfleet/internal/sync"
	"github.com/torqfleet/botfleet/internal/tradelog"
	"github.com/torqfleet/botfleet/internal/worker"
)

// stopJoinTimeout is how long stop_bot/stop_all_bots wait for a worker's
// run loop to exit before giving up on it (spec.md §4.7's "joins within
// 5s").
const stopJoinTimeout = 5 * time.Second

// registration is the controller's internal bookkeeping for one live bot:
// its worker handle, the cancel func for its run context, and the static
// config restart_bot needs to rebuild it.
type registration struct {
	worker *worker.Worker
	cancel context.CancelFunc
	config worker.Config
}

// Controller is the C9 Fleet Controller. The zero value is not usable;
// construct with New.
type Controller struct {
	broker broker.Broker
	st     *store.Store
	tlog   *tradelog.Logger
	bus    *eventbus.Bus
	state  *globalstate.State
	sync   *sync_.Service
	logger *log.Logger
	slog   *logrus.Logger

	statePath string
	cmdPath   string

	mu           sync.Mutex
	bots         map[string]*registration
	magicOwner   map[int]string // magic number -> owning strategy class name
	syncStarted  bool

	ctx       context.Context
	cancelAll context.CancelFunc
	eg        *errgroup.Group
	egCtx     context.Context
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithIPCPaths overrides the default `bots_state.json`/`bots_commands.json`
// locations.
func WithIPCPaths(statePath, cmdPath string) Option {
	return func(c *Controller) {
		if statePath != "" {
			c.statePath = statePath
		}
		if cmdPath != "" {
			c.cmdPath = cmdPath
		}
	}
}

// WithLogger overrides the default stdout logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStructuredLogger overrides the default logrus logger used for the
// controller's and sync service's supervisory log lines.
func WithStructuredLogger(l *logrus.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.slog = l
		}
	}
}

// WithSyncService overrides the default Trade Sync Service (useful for
// tests that want a shorter interval).
func WithSyncService(s *sync_.Service) Option {
	return func(c *Controller) {
		if s != nil {
			c.sync = s
		}
	}
}

// New constructs a Controller over a shared broker, per-account store,
// event bus and global-pause state.
func New(br broker.Broker, st *store.Store, bus *eventbus.Bus, state *globalstate.State, opts ...Option) *Controller {
	c := &Controller{
		broker:     br,
		st:         st,
		tlog:       tradelog.New(st, nil),
		bus:        bus,
		state:      state,
		logger:     log.Default(),
		slog:       logrus.StandardLogger(),
		statePath:  "bots_state.json",
		cmdPath:    "bots_commands.json",
		bots:       make(map[string]*registration),
		magicOwner: make(map[int]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sync == nil {
		c.sync = sync_.New(br, st)
	}
	return c
}

// Start launches the command-processor loop under ctx. It returns
// immediately; background tasks run until ctx is canceled or Shutdown is
// called.
func (c *Controller) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.ctx = runCtx
	c.cancelAll = cancel

	eg, egCtx := errgroup.WithContext(runCtx)
	c.eg = eg
	c.egCtx = egCtx

	eg.Go(func() error {
		c.runCommandLoop(egCtx)
		return nil
	})
}

// Shutdown stops every bot, the sync service, and the command loop,
// waiting for the background tasks launched by Start to exit.
func (c *Controller) Shutdown() {
	c.StopAllBots()
	if c.cancelAll != nil {
		c.cancelAll()
	}
	if c.eg != nil {
		_ = c.eg.Wait()
	}
}

// AddBot registers and launches a new Bot Worker. It rejects a duplicate
// bot-id or a magic number already owned by a different strategy class.
// If this is the fleet's first worker, it also starts the Trade Sync
// Service.
func (c *Controller) AddBot(cfg worker.Config) error {
	botID := cfg.BotID()
	strategyName := cfg.Strategy.Parameters().Name
	magic := cfg.Strategy.MagicNumber()

	c.mu.Lock()
	if _, exists := c.bots[botID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("fleet: bot %q already registered", botID)
	}
	if owner, ok := c.magicOwner[magic]; ok && owner != strategyName {
		c.mu.Unlock()
		return fmt.Errorf("fleet: magic number %d already owned by strategy %q, cannot register %q", magic, owner, strategyName)
	}

	if !c.broker.MarketOpen(context.Background(), cfg.Symbol) {
		c.logger.Printf("fleet: warning: market closed for %s, bot %s will start in waiting_market", cfg.Symbol, botID)
	}

	w := worker.New(cfg, c.broker, c.tlog, c.bus, c.logger)
	runCtx, cancel := context.WithCancel(c.backgroundCtx())

	c.bots[botID] = &registration{worker: w, cancel: cancel, config: cfg}
	c.magicOwner[magic] = strategyName
	firstWorker := len(c.bots) == 1
	c.mu.Unlock()

	if c.eg != nil {
		c.eg.Go(func() error {
			w.Run(runCtx)
			return nil
		})
	} else {
		go w.Run(runCtx)
	}

	if firstWorker && !c.syncStarted {
		c.sync.Start(c.backgroundCtx())
		c.syncStarted = true
	}

	c.refreshGlobalPause()
	c.writeSnapshot()
	return nil
}

func (c *Controller) backgroundCtx() context.Context {
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}

// PauseBot requests the named bot pause. Idempotent; reports whether the
// bot was found.
func (c *Controller) PauseBot(botID string) bool {
	c.mu.Lock()
	reg, ok := c.bots[botID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	reg.worker.Pause()
	c.refreshGlobalPause()
	c.writeSnapshot()
	return true
}

// ResumeBot requests the named bot resume. Idempotent.
func (c *Controller) ResumeBot(botID string) bool {
	c.mu.Lock()
	reg, ok := c.bots[botID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	reg.worker.Resume()
	c.refreshGlobalPause()
	c.writeSnapshot()
	return true
}

// StopBot signals the named bot to stop, clears any pause, and joins its
// run loop (timeout 5s).
func (c *Controller) StopBot(botID string) bool {
	c.mu.Lock()
	reg, ok := c.bots[botID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	c.stopRegistration(reg)
	c.refreshGlobalPause()
	c.writeSnapshot()
	return true
}

func (c *Controller) stopRegistration(reg *registration) {
	reg.worker.Resume()
	reg.worker.Stop()
	if !reg.worker.Join(stopJoinTimeout) {
		c.logger.Printf("fleet: bot %s did not stop within %s", reg.worker.BotID(), stopJoinTimeout)
	}
	reg.cancel()
}

// RestartBot stops the named bot then launches a fresh Worker reusing the
// same configuration.
func (c *Controller) RestartBot(botID string) bool {
	c.mu.Lock()
	reg, ok := c.bots[botID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	c.stopRegistration(reg)

	cfg := reg.config
	w := worker.New(cfg, c.broker, c.tlog, c.bus, c.logger)
	runCtx, cancel := context.WithCancel(c.backgroundCtx())

	c.mu.Lock()
	c.bots[botID] = &registration{worker: w, cancel: cancel, config: cfg}
	c.mu.Unlock()

	if c.eg != nil {
		c.eg.Go(func() error {
			w.Run(runCtx)
			return nil
		})
	} else {
		go w.Run(runCtx)
	}

	c.refreshGlobalPause()
	c.writeSnapshot()
	return true
}

// StopAllBots stops the sync service, then stops and joins every
// registered worker.
func (c *Controller) StopAllBots() {
	if c.syncStarted {
		c.sync.Stop()
		c.syncStarted = false
	}

	c.mu.Lock()
	regs := make([]*registration, 0, len(c.bots))
	for _, reg := range c.bots {
		regs = append(regs, reg)
	}
	c.mu.Unlock()

	for _, reg := range regs {
		c.stopRegistration(reg)
	}

	c.refreshGlobalPause()
	c.writeSnapshot()
}

// BotStatus returns the snapshot record for one bot.
func (c *Controller) BotStatus(botID string) (models.BotRecord, bool) {
	c.mu.Lock()
	reg, ok := c.bots[botID]
	c.mu.Unlock()
	if !ok {
		return models.BotRecord{}, false
	}
	return c.recordFor(reg), true
}

// AllBotStatus returns the snapshot record for every registered bot.
func (c *Controller) AllBotStatus() []models.BotRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.BotRecord, 0, len(c.bots))
	for _, reg := range c.bots {
		out = append(out, c.recordFor(reg))
	}
	return out
}

// ListBots returns every registered bot-id.
func (c *Controller) ListBots() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.bots))
	for id := range c.bots {
		out = append(out, id)
	}
	return out
}

// BotTradingStats delegates to the Trade Store's aggregate query.
func (c *Controller) BotTradingStats(botID string) (store.BotStats, error) {
	return c.st.BotStats(botID)
}

// SyncTradesNow triggers an immediate reconciliation pass.
func (c *Controller) SyncTradesNow() {
	c.sync.SyncNow(c.backgroundCtx())
}

// LastSyncTime reports the time of the most recent successful sync pass.
func (c *Controller) LastSyncTime() time.Time {
	return c.sync.LastSyncTime()
}

func (c *Controller) recordFor(reg *registration) models.BotRecord {
	cfg := reg.config
	return models.BotRecord{
		BotID:           reg.worker.BotID(),
		Status:          models.BotStatus(reg.worker.State()),
		Symbol:          cfg.Symbol,
		Timeframe:       int(cfg.Timeframe),
		IntervalSeconds: cfg.IntervalSeconds,
		MagicNumber:     reg.worker.MagicNumber(),
		IsAlive:         reg.worker.IsAlive(),
	}
}

// refreshGlobalPause implements spec.md §4.8's rule: globally-paused is
// set iff every registered, non-stopped worker is paused and at least one
// such worker exists.
func (c *Controller) refreshGlobalPause() {
	c.mu.Lock()
	total := 0
	paused := 0
	for _, reg := range c.bots {
		st := reg.worker.State()
		if st == worker.StateStopped {
			continue
		}
		total++
		if st == worker.StatePaused {
			paused++
		}
	}
	c.mu.Unlock()

	c.state.SetGloballyPaused(total > 0 && paused == total)
}
