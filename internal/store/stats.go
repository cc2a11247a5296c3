package store

import "fmt"

// BotStats is the aggregate performance summary for one bot.
type BotStats struct {
	BotID        string  `json:"bot_id"`
	TotalTrades  int     `json:"total_trades"`
	ClosedTrades int     `json:"closed_trades"`
	OpenTrades   int     `json:"open_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	TotalProfit  float64 `json:"total_profit"`
	AvgProfit    float64 `json:"avg_profit"`
}

// BotStats computes TotalTrades/wins/losses/profit aggregates for botID.
func (s *Store) BotStats(botID string) (BotStats, error) {
	stats := BotStats{BotID: botID}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE bot_id = ?`, botID).Scan(&stats.TotalTrades); err != nil {
		return BotStats{}, fmt.Errorf("store: count total trades: %w", err)
	}
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM trades WHERE bot_id = ? AND status = 'closed' AND profit > 0`, botID,
	).Scan(&stats.Wins); err != nil {
		return BotStats{}, fmt.Errorf("store: count wins: %w", err)
	}
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM trades WHERE bot_id = ? AND status = 'closed' AND profit < 0`, botID,
	).Scan(&stats.Losses); err != nil {
		return BotStats{}, fmt.Errorf("store: count losses: %w", err)
	}
	if err := s.db.QueryRow(
		`SELECT COALESCE(SUM(profit), 0) FROM trades WHERE bot_id = ? AND status = 'closed'`, botID,
	).Scan(&stats.TotalProfit); err != nil {
		return BotStats{}, fmt.Errorf("store: sum profit: %w", err)
	}
	if err := s.db.QueryRow(
		`SELECT COALESCE(AVG(profit), 0) FROM trades WHERE bot_id = ? AND status = 'closed'`, botID,
	).Scan(&stats.AvgProfit); err != nil {
		return BotStats{}, fmt.Errorf("store: avg profit: %w", err)
	}

	stats.ClosedTrades = stats.Wins + stats.Losses
	stats.OpenTrades = stats.TotalTrades - stats.ClosedTrades
	if stats.ClosedTrades > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.ClosedTrades) * 100
	}

	return stats, nil
}

// AllBotStats computes BotStats for every bot_id that has at least one
// trade row.
func (s *Store) AllBotStats() ([]BotStats, error) {
	rows, err := s.db.Query(`SELECT DISTINCT bot_id FROM trades`)
	if err != nil {
		return nil, fmt.Errorf("store: list bot ids: %w", err)
	}

	var botIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan bot id: %w", err)
		}
		botIDs = append(botIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	out := make([]BotStats, 0, len(botIDs))
	for _, id := range botIDs {
		stats, err := s.BotStats(id)
		if err != nil {
			return nil, err
		}
		out = append(out, stats)
	}
	return out, nil
}
