package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quantfolio/internal/domain"
	"quantfolio/internal/engine"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ engine.Recorder = (*SQLiteStore)(nil)

// ErrRunNotFound is returned when a run ID has no stored result.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS fills (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL,
	strategy        TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	shares          INTEGER NOT NULL,
	quoted_price    REAL NOT NULL,
	execution_price REAL NOT NULL,
	slippage_cost   REAL NOT NULL,
	commission_cost REAL NOT NULL,
	total_cost      REAL NOT NULL,
	realized_pnl    REAL NOT NULL,
	reason          TEXT NOT NULL,
	synthetic       INTEGER NOT NULL,
	stop_loss       INTEGER NOT NULL,
	filled_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS fills_run ON fills(run_id, filled_at);
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	start_date  TEXT NOT NULL,
	end_date    TEXT NOT NULL,
	summary     TEXT NOT NULL,
	trusted     INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL
);`

// SQLiteStore records fills and run summaries in a SQLite database. It
// implements engine.Recorder.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordFill inserts a fill for runID.
func (s *SQLiteStore) RecordFill(ctx context.Context, runID string, f domain.Fill) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO fills (id, run_id, strategy, symbol, side, shares, quoted_price, execution_price,
	slippage_cost, commission_cost, total_cost, realized_pnl, reason, synthetic, stop_loss, filled_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, runID, f.Strategy, f.Symbol, string(f.Side), f.Shares, f.QuotedPrice, f.ExecutionPrice,
		f.SlippageCost, f.CommissionCost, f.TotalCost, f.RealizedPnL, f.Reason, f.Synthetic, f.StopLoss,
		f.Timestamp.UnixMilli())
	return err
}

// RecordResult stores the run's summary. Recording the same run twice
// replaces the earlier row.
func (s *SQLiteStore) RecordResult(ctx context.Context, r *engine.Result) error {
	summary, err := json.Marshal(r.Summary())
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO runs (id, start_date, end_date, summary, trusted, recorded_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly), string(summary), r.Trusted,
		time.Now().UnixMilli())
	return err
}

// ListFills returns every fill recorded for runID in execution order.
func (s *SQLiteStore) ListFills(ctx context.Context, runID string) ([]domain.Fill, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, strategy, symbol, side, shares, quoted_price, execution_price, slippage_cost,
	commission_cost, total_cost, realized_pnl, reason, synthetic, stop_loss, filled_at
FROM fills WHERE run_id = ? ORDER BY filled_at, rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var (
			f    domain.Fill
			side string
			ts   int64
		)
		if err := rows.Scan(&f.ID, &f.Strategy, &f.Symbol, &side, &f.Shares, &f.QuotedPrice,
			&f.ExecutionPrice, &f.SlippageCost, &f.CommissionCost, &f.TotalCost, &f.RealizedPnL,
			&f.Reason, &f.Synthetic, &f.StopLoss, &ts); err != nil {
			return nil, err
		}
		f.Side = domain.Side(side)
		f.Timestamp = time.UnixMilli(ts).UTC()
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// RunSummary returns the stored summary for runID and whether the run's
// guardrail checks all passed.
func (s *SQLiteStore) RunSummary(ctx context.Context, runID string) (engine.Summary, bool, error) {
	var (
		raw     string
		trusted bool
		sum     engine.Summary
	)
	err := s.db.QueryRowContext(ctx, `SELECT summary, trusted FROM runs WHERE id = ?`, runID).Scan(&raw, &trusted)
	if errors.Is(err, sql.ErrNoRows) {
		return sum, false, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return sum, false, err
	}
	if err := json.Unmarshal([]byte(raw), &sum); err != nil {
		return sum, false, fmt.Errorf("decoding summary for %s: %w", runID, err)
	}
	return sum, trusted, nil
}
