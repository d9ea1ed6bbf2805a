// Package store persists simulation runs: portfolio snapshots per
// step, serialized through the ledger's state maps, plus the trade
// log. SQLite keeps a whole run in one file.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"barsim/internal/account"
	"barsim/internal/errors"
	"barsim/internal/models"
)

// RunStore is a SQLite-backed run archive.
type RunStore struct {
	db *sql.DB
}

// NewRunStore opens or creates a run archive at dbPath.
func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &RunStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *RunStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		matching_mode TEXT NOT NULL,
		reward_mode TEXT NOT NULL,
		starting_cash REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		trading_dt DATETIME NOT NULL,
		state TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, step),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS trades (
		exec_id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		order_id INTEGER NOT NULL,
		order_book_id TEXT NOT NULL,
		side TEXT NOT NULL,
		position_effect TEXT NOT NULL,
		last_price REAL NOT NULL,
		last_quantity INTEGER NOT NULL,
		commission REAL NOT NULL,
		tax REAL NOT NULL,
		trading_dt DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run_id);
	CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);
	CREATE INDEX IF NOT EXISTS idx_trades_instrument ON trades(order_book_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// CreateRun registers a run id with its configuration.
func (s *RunStore) CreateRun(ctx context.Context, runID string, matchingMode models.MatchingMode, rewardMode string, startingCash float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, matching_mode, reward_mode, starting_cash)
		VALUES (?, ?, ?, ?)`,
		runID, string(matchingMode), rewardMode, startingCash)
	return err
}

// SaveSnapshot stores the portfolio state of one step as JSON.
func (s *RunStore) SaveSnapshot(ctx context.Context, runID string, step int, tradingDT time.Time, state account.PortfolioState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling portfolio state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots (run_id, step, trading_dt, state)
		VALUES (?, ?, ?, ?)`,
		runID, step, tradingDT, string(blob))
	return err
}

// LoadSnapshot restores the portfolio state persisted for one step.
func (s *RunStore) LoadSnapshot(ctx context.Context, runID string, step int) (account.PortfolioState, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM snapshots WHERE run_id = ? AND step = ?`,
		runID, step).Scan(&blob)
	if err == sql.ErrNoRows {
		return account.PortfolioState{}, fmt.Errorf("run %q step %d: %w", runID, step, errors.ErrRunNotFound)
	}
	if err != nil {
		return account.PortfolioState{}, err
	}
	var state account.PortfolioState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return account.PortfolioState{}, fmt.Errorf("unmarshaling portfolio state: %w", err)
	}
	return state, nil
}

// LogTrade appends one execution to the run's trade log.
func (s *RunStore) LogTrade(ctx context.Context, runID string, t *models.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO trades
		(exec_id, run_id, order_id, order_book_id, side, position_effect,
		 last_price, last_quantity, commission, tax, trading_dt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ExecID, runID, t.OrderID, t.OrderBookID, string(t.Side), string(t.PositionEffect),
		t.LastPrice, t.LastQuantity, t.Commission, t.Tax, t.TradingDT)
	return err
}

// Trades returns the run's executions in trading-time order.
func (s *RunStore) Trades(ctx context.Context, runID string) ([]*models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT exec_id, order_id, order_book_id, side, position_effect,
		       last_price, last_quantity, commission, tax, trading_dt
		FROM trades WHERE run_id = ? ORDER BY trading_dt, exec_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Trade
	for rows.Next() {
		t := &models.Trade{}
		var side, effect string
		if err := rows.Scan(&t.ExecID, &t.OrderID, &t.OrderBookID, &side, &effect,
			&t.LastPrice, &t.LastQuantity, &t.Commission, &t.Tax, &t.TradingDT); err != nil {
			return nil, err
		}
		t.Side = models.Side(side)
		t.PositionEffect = models.PositionEffect(effect)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Steps returns the persisted step numbers of a run, ascending.
func (s *RunStore) Steps(ctx context.Context, runID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step FROM snapshots WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var step int
		if err := rows.Scan(&step); err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, rows.Err()
}

// Runs lists the archived run ids, newest first.
func (s *RunStore) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
