package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/tick_trader/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			contract_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			stake REAL NOT NULL,
			payout REAL NOT NULL,
			profit REAL NOT NULL,
			result TEXT NOT NULL,
			duration INTEGER NOT NULL DEFAULT 0,
			symbol TEXT NOT NULL,
			account_type TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_contract ON trades(contract_id);`,
		`CREATE TABLE IF NOT EXISTS strategy_settings (
			kind TEXT PRIMARY KEY,
			config TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// TradeRepository Implementation

func (s *SQLiteStore) SaveTrade(ctx context.Context, t *domain.TradeRecord) error {
	query := `INSERT INTO trades (id, contract_id, direction, entry_price, exit_price, stake, payout, profit, result, duration, symbol, account_type, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.ContractID, t.Direction, t.EntryPrice, t.ExitPrice, t.Stake, t.Payout,
		t.Profit, t.Result, t.Duration, t.Symbol, t.AccountType, t.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save trade %s: %w", t.ContractID, err)
	}
	return nil
}

// ListTrades returns up to limit trades, most recent first.
func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	query := `SELECT id, contract_id, direction, entry_price, exit_price, stake, payout, profit, result, duration, symbol, account_type, created_at
			  FROM trades ORDER BY seq DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		if err := rows.Scan(&t.ID, &t.ContractID, &t.Direction, &t.EntryPrice, &t.ExitPrice, &t.Stake, &t.Payout,
			&t.Profit, &t.Result, &t.Duration, &t.Symbol, &t.AccountType, &t.Timestamp); err != nil {
			return nil, err
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) DeleteTrades(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM trades")
	return err
}

// SettingsRepository Implementation

// GetStrategyConfig returns the defaults for kind with any stored overrides
// applied on top.
func (s *SQLiteStore) GetStrategyConfig(ctx context.Context, kind domain.StrategyKind) (domain.StrategyConfig, error) {
	if !kind.Valid() {
		return domain.StrategyConfig{}, fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, kind)
	}
	cfg := domain.DefaultStrategyConfig(kind)

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT config FROM strategy_settings WHERE kind = ?`, kind).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, nil
	}
	if err != nil {
		return domain.StrategyConfig{}, err
	}

	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return domain.StrategyConfig{}, fmt.Errorf("failed to decode %s settings: %w", kind, err)
	}
	cfg.Kind = kind
	return cfg, nil
}

func (s *SQLiteStore) SaveStrategyConfig(ctx context.Context, cfg domain.StrategyConfig) error {
	if !cfg.Kind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, cfg.Kind)
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	query := `INSERT INTO strategy_settings (kind, config, updated_at)
			  VALUES (?, ?, ?)
			  ON CONFLICT(kind) DO UPDATE SET
			  config=excluded.config,
			  updated_at=excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query, cfg.Kind, string(raw), time.Now())
	return err
}

var (
	_ domain.TradeRepository    = (*SQLiteStore)(nil)
	_ domain.SettingsRepository = (*SQLiteStore)(nil)
)
