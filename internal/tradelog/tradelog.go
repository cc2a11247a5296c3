// Package tradelog is the thin facade Bot Workers call to record trade
// and signal lifecycle events, translating domain models into store rows
// and pip-denominated profit.
package tradelog

import (
	"fmt"
	"log"
	"time"

	"github.com/torqfleet/botfleet/internal/models"
	"github.com/torqfleet/botfleet/internal/store"
	"github.com/torqfleet/botfleet/internal/util"
)

// Logger records trades and signals for one account's Store.
type Logger struct {
	store  *store.Store
	logger *log.Logger
}

// New wraps s. A nil logger defaults to log.Default().
func New(s *store.Store, logger *log.Logger) *Logger {
	if logger == nil {
		logger = log.Default()
	}
	return &Logger{store: s, logger: logger}
}

// LogOpened inserts a new opened trade row and returns its store id.
func (l *Logger) LogOpened(t models.Trade) (int64, error) {
	if t.Status == "" {
		t.Status = models.TradeStatusOpened
	}
	if t.OpenedAt.IsZero() {
		t.OpenedAt = time.Now().UTC()
	}
	id, err := l.store.InsertTrade(t)
	if err != nil {
		return 0, fmt.Errorf("tradelog: log opened: %w", err)
	}
	return id, nil
}

// LogClosed finds the opened trade matching ticket, computes its pip
// profit and stamps it closed. It returns false (with a warning logged)
// if no opened row matches ticket — a sync pass racing a worker's own
// close, or a ticket the store never saw opened.
func (l *Logger) LogClosed(ticket int64, symbol string, action models.Action, exitPrice, profit, commission, swap float64, closedAt time.Time, reason models.CloseReason) (bool, error) {
	existing, err := l.store.GetTradeByTicket(ticket)
	if err != nil {
		return false, fmt.Errorf("tradelog: log closed: lookup ticket %d: %w", ticket, err)
	}
	if existing == nil || existing.Status != models.TradeStatusOpened {
		l.logger.Printf("tradelog: no opened trade found for ticket %d, skipping close", ticket)
		return false, nil
	}

	pips := util.ProfitPips(symbol, string(action), existing.EntryPrice, exitPrice)
	closedAtCopy := closedAt.UTC()

	update := models.Trade{
		Ticket:      ticket,
		ExitPrice:   &exitPrice,
		Profit:      profit,
		ProfitPips:  &pips,
		Commission:  commission,
		Swap:        swap,
		ClosedAt:    &closedAtCopy,
		Status:      models.TradeStatusClosed,
		CloseReason: reason,
	}

	updated, err := l.store.UpdateOpenTradeByTicket(update)
	if err != nil {
		return false, fmt.Errorf("tradelog: log closed: update ticket %d: %w", ticket, err)
	}
	if !updated {
		l.logger.Printf("tradelog: update affected no rows for ticket %d", ticket)
	}
	return updated, nil
}

// LogSignal records one strategy decision, regardless of whether it was
// executed.
func (l *Logger) LogSignal(sig models.Signal) (int64, error) {
	if sig.GeneratedAt.IsZero() {
		sig.GeneratedAt = time.Now().UTC()
	}
	id, err := l.store.InsertSignal(sig)
	if err != nil {
		return 0, fmt.Errorf("tradelog: log signal: %w", err)
	}
	return id, nil
}
