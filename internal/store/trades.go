package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/torqfleet/botfleet/internal/models"
)

// InsertTrade inserts a new trade row and returns its assigned id.
func (s *Store) InsertTrade(t models.Trade) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO trades (
			ticket, magic_number, bot_id, strategy_name, symbol, action,
			volume, entry_price, exit_price, sl_price, tp_price,
			profit, profit_pips, commission, swap,
			opened_at, closed_at, status, close_reason,
			signal_data, market_context
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Ticket, t.MagicNumber, t.BotID, t.StrategyName, t.Symbol, string(t.Action),
		t.Volume, t.EntryPrice, t.ExitPrice, t.SLPrice, t.TPPrice,
		t.Profit, t.ProfitPips, t.Commission, t.Swap,
		formatTime(t.OpenedAt), formatTimePtr(t.ClosedAt), string(t.Status), string(t.CloseReason),
		t.SignalData, t.MarketContext,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert trade: %w", err)
	}
	return res.LastInsertId()
}

// UpdateTradeByID updates the closing fields of a trade identified by its
// store id.
func (s *Store) UpdateTradeByID(t models.Trade) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE trades SET
			exit_price = ?, profit = ?, profit_pips = ?,
			commission = ?, swap = ?, closed_at = ?,
			status = ?, close_reason = ?
		WHERE id = ?`,
		t.ExitPrice, t.Profit, t.ProfitPips, t.Commission, t.Swap,
		formatTimePtr(t.ClosedAt), string(t.Status), string(t.CloseReason), t.ID,
	)
	if err != nil {
		return false, fmt.Errorf("store: update trade by id: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateOpenTradeByTicket updates the closing fields of the still-opened
// trade matching ticket. It's a no-op if no opened row matches — callers
// use the returned bool to detect that and log accordingly.
func (s *Store) UpdateOpenTradeByTicket(t models.Trade) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE trades SET
			exit_price = ?, profit = ?, profit_pips = ?,
			commission = ?, swap = ?, closed_at = ?,
			status = ?, close_reason = ?
		WHERE ticket = ? AND status = 'opened'`,
		t.ExitPrice, t.Profit, t.ProfitPips, t.Commission, t.Swap,
		formatTimePtr(t.ClosedAt), string(t.Status), string(t.CloseReason), t.Ticket,
	)
	if err != nil {
		return false, fmt.Errorf("store: update open trade by ticket: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetTradeByTicket returns the trade matching ticket, or nil if none
// exists.
func (s *Store) GetTradeByTicket(ticket int64) (*models.Trade, error) {
	row := s.db.QueryRow(`SELECT * FROM trades WHERE ticket = ?`, ticket)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get trade by ticket: %w", err)
	}
	return t, nil
}

// ListOpenTrades returns every trade with status "opened", optionally
// scoped to a single bot.
func (s *Store) ListOpenTrades(botID string) ([]models.Trade, error) {
	var rows *sql.Rows
	var err error
	if botID != "" {
		rows, err = s.db.Query(`SELECT * FROM trades WHERE status = 'opened' AND bot_id = ? ORDER BY ticket DESC`, botID)
	} else {
		rows, err = s.db.Query(`SELECT * FROM trades WHERE status = 'opened' ORDER BY ticket DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list open trades: %w", err)
	}
	return scanTrades(rows)
}

// ListTradesByBot returns up to limit trades for botID, most recent
// ticket first.
func (s *Store) ListTradesByBot(botID string, limit int) ([]models.Trade, error) {
	rows, err := s.db.Query(`SELECT * FROM trades WHERE bot_id = ? ORDER BY ticket DESC LIMIT ?`, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list trades by bot: %w", err)
	}
	return scanTrades(rows)
}

// ListTradesByDateRange returns trades opened within [start, end],
// optionally scoped to a single bot.
func (s *Store) ListTradesByDateRange(start, end time.Time, botID string) ([]models.Trade, error) {
	var rows *sql.Rows
	var err error
	if botID != "" {
		rows, err = s.db.Query(
			`SELECT * FROM trades WHERE opened_at >= ? AND opened_at <= ? AND bot_id = ? ORDER BY ticket DESC`,
			formatTime(start), formatTime(end), botID,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT * FROM trades WHERE opened_at >= ? AND opened_at <= ? ORDER BY ticket DESC`,
			formatTime(start), formatTime(end),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list trades by date range: %w", err)
	}
	return scanTrades(rows)
}

// ListAllTrades returns up to limit trades across every bot, most recent
// ticket first.
func (s *Store) ListAllTrades(limit int) ([]models.Trade, error) {
	rows, err := s.db.Query(`SELECT * FROM trades ORDER BY ticket DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list all trades: %w", err)
	}
	return scanTrades(rows)
}

// scanner abstracts *sql.Row and *sql.Rows so scanTrade can serve both.
type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(row scanner) (*models.Trade, error) {
	var t models.Trade
	var action, status, closeReason string
	var openedAt, closedAt, createdAt sql.NullString
	var signalData, marketContext sql.NullString
	var exitPrice, slPrice, tpPrice, profitPips sql.NullFloat64

	err := row.Scan(
		&t.ID, &t.Ticket, &t.MagicNumber, &t.BotID, &t.StrategyName, &t.Symbol, &action,
		&t.Volume, &t.EntryPrice, &exitPrice, &slPrice, &tpPrice,
		&t.Profit, &profitPips, &t.Commission, &t.Swap,
		&openedAt, &closedAt, &status, &closeReason,
		&signalData, &marketContext, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	t.Action = models.Action(action)
	t.Status = models.TradeStatus(status)
	t.CloseReason = models.CloseReason(closeReason)
	t.OpenedAt = parseTime(openedAt)
	t.ClosedAt = parseTimePtr(closedAt)
	if exitPrice.Valid {
		v := exitPrice.Float64
		t.ExitPrice = &v
	}
	if slPrice.Valid {
		v := slPrice.Float64
		t.SLPrice = &v
	}
	if tpPrice.Valid {
		v := tpPrice.Float64
		t.TPPrice = &v
	}
	if profitPips.Valid {
		v := profitPips.Float64
		t.ProfitPips = &v
	}
	if signalData.Valid {
		t.SignalData = &signalData.String
	}
	if marketContext.Valid {
		t.MarketContext = &marketContext.String
	}
	t.CreatedAt = parseTime(createdAt)

	return &t, nil
}

func scanTrades(rows *sql.Rows) ([]models.Trade, error) {
	defer rows.Close()
	var out []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan trade: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
