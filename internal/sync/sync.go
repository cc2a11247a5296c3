// Package sync reconciles the trade store with the broker's own deal
// history: trades a Bot Worker never recorded (a manual close, a
// platform-side stop-out) still end up in the store after the next pass.
package sync

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/torqfleet/botfleet/internal/broker"
	"github.com/torqfleet/botfleet/internal/models"
	"github.com/torqfleet/botfleet/internal/store"
	"github.com/torqfleet/botfleet/internal/util"
)

const (
	// DefaultInterval is the reconciliation cadence.
	DefaultInterval = 10 * time.Minute
	// DefaultHistoryWindow bounds how far back each pass looks.
	DefaultHistoryWindow = 7 * 24 * time.Hour
)

// Service periodically reconciles broker.HistoryDeals against the trade
// store. The zero value is not usable; construct with New.
type Service struct {
	broker   broker.Broker
	store    *store.Store
	magic    *util.MagicTable
	interval time.Duration
	window   time.Duration
	logger   *log.Logger

	mu       sync.Mutex
	lastSync time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

// WithHistoryWindow overrides DefaultHistoryWindow.
func WithHistoryWindow(d time.Duration) Option {
	return func(s *Service) { s.window = d }
}

// WithMagicTable overrides the default magic-number-to-strategy lookup
// used to synthesize strategy names for trades the store never saw
// opened.
func WithMagicTable(t *util.MagicTable) Option {
	return func(s *Service) { s.magic = t }
}

// WithLogger overrides the default stderr logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New constructs a Service over b and st.
func New(b broker.Broker, st *store.Store, opts ...Option) *Service {
	s := &Service{
		broker:   b,
		store:    st,
		magic:    util.DefaultMagicTable(),
		interval: DefaultInterval,
		window:   DefaultHistoryWindow,
		logger:   log.Default(),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs an immediate sync followed by one every interval, until
// ctx is canceled or Stop is called. It returns once the background
// goroutine is launched; it does not block.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.SyncNow(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.SyncNow(ctx)
			}
		}
	}()
}

// Stop signals the background loop to exit and waits up to 5 seconds for
// it to do so.
func (s *Service) Stop() {
	close(s.stopCh)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

// LastSyncTime reports when the most recent successful pass completed,
// the zero time if none has yet.
func (s *Service) LastSyncTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// SyncNow runs one reconciliation pass immediately.
func (s *Service) SyncNow(ctx context.Context) {
	from := time.Now().Add(-s.window)
	to := time.Now()

	deals, err := s.broker.HistoryDeals(ctx, from, to)
	if err != nil {
		s.logger.Printf("sync: history_deals failed: %v", err)
		return
	}

	positions := groupDealsByPosition(deals)

	var created, updated int
	for positionID, group := range positions {
		result, err := s.processPosition(positionID, group)
		if err != nil {
			s.logger.Printf("sync: position %d: %v", positionID, err)
			continue
		}
		switch result {
		case resultNew:
			created++
		case resultUpdated:
			updated++
		}
	}

	s.mu.Lock()
	s.lastSync = time.Now().UTC()
	s.mu.Unlock()

	s.logger.Printf("sync: complete: %d new, %d updated", created, updated)
}

type syncResult int

const (
	resultSkip syncResult = iota
	resultNew
	resultUpdated
)

func groupDealsByPosition(deals []broker.Deal) map[int64][]broker.Deal {
	positions := make(map[int64][]broker.Deal)
	for _, d := range deals {
		if d.PositionID == 0 {
			continue
		}
		positions[d.PositionID] = append(positions[d.PositionID], d)
	}
	return positions
}

func (s *Service) processPosition(positionID int64, deals []broker.Deal) (syncResult, error) {
	if len(deals) == 0 {
		return resultSkip, nil
	}

	sorted := make([]broker.Deal, len(deals))
	copy(sorted, deals)
	sortDealsByTime(sorted)

	entry := sorted[0]
	var exit *broker.Deal
	if len(sorted) > 1 {
		exit = &sorted[len(sorted)-1]
	}

	ticket := entry.OrderID
	if ticket == 0 {
		ticket = positionID
	}

	existing, err := s.store.GetTradeByTicket(ticket)
	if err != nil {
		return resultSkip, fmt.Errorf("lookup ticket %d: %w", ticket, err)
	}

	if existing != nil {
		if existing.Status == models.TradeStatusOpened && exit != nil {
			return s.updateFromExit(ticket, *existing, entry, *exit)
		}
		return resultSkip, nil
	}

	return s.createFromDeals(ticket, entry, exit)
}

func sortDealsByTime(deals []broker.Deal) {
	for i := 1; i < len(deals); i++ {
		for j := i; j > 0 && deals[j-1].Time.After(deals[j].Time); j-- {
			deals[j-1], deals[j] = deals[j], deals[j-1]
		}
	}
}

func closeReasonFromComment(comment string) models.CloseReason {
	lower := strings.ToLower(comment)
	switch {
	case strings.Contains(lower, "[tp"):
		return models.CloseReasonTP
	case strings.Contains(lower, "[sl"):
		return models.CloseReasonSL
	default:
		return models.CloseReasonSynced
	}
}

func (s *Service) botIDFromDeal(d broker.Deal) string {
	return fmt.Sprintf("Synced_%s_M%d", d.Symbol, d.Magic)
}

func (s *Service) createFromDeals(ticket int64, entry broker.Deal, exit *broker.Deal) (syncResult, error) {
	status := models.TradeStatusOpened
	var exitPrice *float64
	var closedAt *time.Time
	var profitPips *float64
	profit := 0.0
	commission := entry.Commission
	swap := entry.Swap
	closeReason := models.CloseReasonNone

	if exit != nil {
		status = models.TradeStatusClosed
		price := exit.Price
		exitPrice = &price
		closedAtVal := exit.Time.UTC()
		closedAt = &closedAtVal
		profit = exit.Profit
		commission += exit.Commission
		swap += exit.Swap
		pips := util.ProfitPips(entry.Symbol, string(entry.Type), entry.Price, exit.Price)
		profitPips = &pips
		closeReason = closeReasonFromComment(exit.Comment)
	}

	trade := models.Trade{
		Ticket:       ticket,
		MagicNumber:  entry.Magic,
		BotID:        s.botIDFromDeal(entry),
		StrategyName: s.magic.StrategyName(entry.Magic),
		Symbol:       entry.Symbol,
		Action:       entry.Type,
		Volume:       entry.Volume,
		EntryPrice:   entry.Price,
		ExitPrice:    exitPrice,
		Profit:       profit,
		ProfitPips:   profitPips,
		Commission:   commission,
		Swap:         swap,
		OpenedAt:     entry.Time.UTC(),
		ClosedAt:     closedAt,
		Status:       status,
		CloseReason:  closeReason,
	}

	if _, err := s.store.InsertTrade(trade); err != nil {
		return resultSkip, fmt.Errorf("insert synced trade: %w", err)
	}
	return resultNew, nil
}

func (s *Service) updateFromExit(ticket int64, existing models.Trade, entry, exit broker.Deal) (syncResult, error) {
	exitPrice := exit.Price
	pips := util.ProfitPips(entry.Symbol, string(entry.Type), entry.Price, exit.Price)
	closedAt := exit.Time.UTC()

	update := models.Trade{
		Ticket:      ticket,
		ExitPrice:   &exitPrice,
		Profit:      exit.Profit,
		ProfitPips:  &pips,
		Commission:  existing.Commission + exit.Commission,
		Swap:        existing.Swap + exit.Swap,
		ClosedAt:    &closedAt,
		Status:      models.TradeStatusClosed,
		CloseReason: closeReasonFromComment(exit.Comment),
	}

	updated, err := s.store.UpdateOpenTradeByTicket(update)
	if err != nil {
		return resultSkip, fmt.Errorf("update synced trade: %w", err)
	}
	if !updated {
		return resultSkip, nil
	}
	return resultUpdated, nil
}
