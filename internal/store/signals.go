package store

import (
	"database/sql"
	"fmt"

	"github.com/torqfleet/botfleet/internal/models"
)

// InsertSignal records one strategy decision, executed or not.
func (s *Store) InsertSignal(sig models.Signal) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO signals (
			bot_id, strategy_name, symbol, timeframe, signal_type,
			generated_at, price_at_signal, was_executed, execution_ticket,
			skip_reason, indicators_snapshot
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.BotID, sig.StrategyName, sig.Symbol, sig.Timeframe, string(sig.SignalType),
		formatTime(sig.GeneratedAt), sig.PriceAtSignal, boolToInt(sig.WasExecuted), sig.ExecutionTicket,
		string(sig.SkipReason), sig.IndicatorsSnapshot,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert signal: %w", err)
	}
	return res.LastInsertId()
}

// ListSignalsByBot returns up to limit signals for botID, most recent
// first.
func (s *Store) ListSignalsByBot(botID string, limit int) ([]models.Signal, error) {
	rows, err := s.db.Query(
		`SELECT id, bot_id, strategy_name, symbol, timeframe, signal_type,
			generated_at, price_at_signal, was_executed, execution_ticket,
			skip_reason, indicators_snapshot, created_at
		 FROM signals WHERE bot_id = ? ORDER BY generated_at DESC LIMIT ?`,
		botID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list signals by bot: %w", err)
	}
	defer rows.Close()

	var out []models.Signal
	for rows.Next() {
		var sig models.Signal
		var signalType, skipReason string
		var generatedAt, createdAt sql.NullString
		var executionTicket sql.NullInt64
		var indicatorsSnapshot sql.NullString

		if err := rows.Scan(
			&sig.ID, &sig.BotID, &sig.StrategyName, &sig.Symbol, &sig.Timeframe, &signalType,
			&generatedAt, &sig.PriceAtSignal, &sig.WasExecuted, &executionTicket,
			&skipReason, &indicatorsSnapshot, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan signal: %w", err)
		}

		sig.SignalType = models.SignalType(signalType)
		sig.SkipReason = models.SkipReason(skipReason)
		sig.GeneratedAt = parseTime(generatedAt)
		if executionTicket.Valid {
			v := executionTicket.Int64
			sig.ExecutionTicket = &v
		}
		if indicatorsSnapshot.Valid {
			sig.IndicatorsSnapshot = &indicatorsSnapshot.String
		}
		sig.CreatedAt = parseTime(createdAt)

		out = append(out, sig)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
