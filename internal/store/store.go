// Package store persists trades and signals in a per-account SQLite
// database, so a later swap to a server-backed engine only touches this
// package.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/torqfleet/botfleet/internal/models"
)

// Store wraps a single SQLite database holding one account's trades and
// signals. Safe for concurrent use: database/sql pools and serializes
// access to the underlying connection.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultDBPath returns the per-account database path convention: one
// file per MT5 login under dataDir, or a shared default file when login
// is zero (used for local/manual runs without a live account).
func DefaultDBPath(dataDir string, login int64) string {
	if login == 0 {
		return filepath.Join(dataDir, "trades_default.db")
	}
	return filepath.Join(dataDir, fmt.Sprintf("trades_account_%d.db", login))
}

// Open creates the parent directory if needed, opens (or creates) the
// SQLite file at path, and ensures the schema exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("store: create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single SQLite file driven by the database/sql pool serializes
	// writers at the driver level anyway; keep one connection so WAL
	// checkpointing and busy-retries behave predictably under load.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ticket INTEGER,
	magic_number INTEGER,
	bot_id TEXT,
	strategy_name TEXT,
	symbol TEXT,
	action TEXT,
	volume REAL,
	entry_price REAL,
	exit_price REAL,
	sl_price REAL,
	tp_price REAL,
	profit REAL,
	profit_pips REAL,
	commission REAL,
	swap REAL,
	opened_at TEXT,
	closed_at TEXT,
	status TEXT,
	close_reason TEXT,
	signal_data TEXT,
	market_context TEXT,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS signals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	bot_id TEXT,
	strategy_name TEXT,
	symbol TEXT,
	timeframe TEXT,
	signal_type TEXT,
	generated_at TEXT,
	price_at_signal REAL,
	was_executed INTEGER,
	execution_ticket INTEGER,
	skip_reason TEXT,
	indicators_snapshot TEXT,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_trades_bot_id ON trades(bot_id);
CREATE INDEX IF NOT EXISTS idx_trades_magic ON trades(magic_number);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_opened ON trades(opened_at);
CREATE INDEX IF NOT EXISTS idx_signals_bot_id ON signals(bot_id);
`

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
