// Package store persists backtest runs in sqlite: run metadata with the
// parameters and analysis, plus every fill and every step's equity.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pedropmedina/trailgrid/backtest"
	"github.com/pedropmedina/trailgrid/logger"
	"github.com/pedropmedina/trailgrid/orders"
)

var ErrNotFound = errors.New("run not found")

// timeLayout has fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db *sql.DB
}

// Run is the stored summary of one backtest.
type Run struct {
	ID           uuid.UUID            `json:"id"`
	CreatedAt    time.Time            `json:"created_at"`
	Symbols      []string             `json:"symbols"`
	Bot          orders.BotParamsPair `json:"bot"`
	Analysis     backtest.Analysis    `json:"analysis"`
	Fills        int                  `json:"fills"`
	FinalBalance float64              `json:"final_balance"`
	FinalEquity  float64              `json:"final_equity"`
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize table structure: %w", err)
	}
	logger.Debugf("run store opened at %s", path)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			symbols TEXT NOT NULL,
			bot TEXT NOT NULL,
			analysis TEXT NOT NULL,
			fills INTEGER NOT NULL DEFAULT 0,
			final_balance REAL NOT NULL DEFAULT 0,
			final_equity REAL NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS fills (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			step INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			pnl REAL NOT NULL,
			fee_paid REAL NOT NULL,
			balance REAL NOT NULL,
			fill_qty REAL NOT NULL,
			fill_price REAL NOT NULL,
			position_size REAL NOT NULL,
			position_price REAL NOT NULL,
			order_type TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS equities (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			equity REAL NOT NULL,
			balance REAL NOT NULL,
			PRIMARY KEY (run_id, step)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}
	return nil
}

// SaveRun writes a finished run in one transaction.
func (s *Store) SaveRun(ctx context.Context, res *backtest.Result, symbols []string, bot orders.BotParamsPair) error {
	symbolsJSON, err := json.Marshal(symbols)
	if err != nil {
		return err
	}
	botJSON, err := json.Marshal(bot)
	if err != nil {
		return err
	}
	analysisJSON, err := json.Marshal(res.Analysis)
	if err != nil {
		return err
	}
	var finalBalance, finalEquity float64
	if n := len(res.Equities); n > 0 {
		finalBalance, finalEquity = res.Balances[n-1], res.Equities[n-1]
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, symbols, bot, analysis, fills, final_balance, final_equity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.RunID.String(),
		time.Now().UTC().Format(timeLayout),
		string(symbolsJSON),
		string(botJSON),
		string(analysisJSON),
		len(res.Fills),
		finalBalance,
		finalEquity,
	); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	fillStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fills (
			run_id, seq, step, symbol, pnl, fee_paid, balance,
			fill_qty, fill_price, position_size, position_price, order_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer fillStmt.Close()
	for seq, f := range res.Fills {
		if _, err := fillStmt.ExecContext(ctx,
			res.RunID.String(), seq, f.Index, f.Symbol, f.Pnl, f.FeePaid, f.Balance,
			f.FillQty, f.FillPrice, f.PositionSize, f.PositionPrice, f.OrderType.String(),
		); err != nil {
			return fmt.Errorf("failed to save fill %d: %w", seq, err)
		}
	}

	equityStmt, err := tx.PrepareContext(ctx, `INSERT INTO equities (run_id, step, equity, balance) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer equityStmt.Close()
	for k, equity := range res.Equities {
		if _, err := equityStmt.ExecContext(ctx, res.RunID.String(), k, equity, res.Balances[k]); err != nil {
			return fmt.Errorf("failed to save equity at step %d: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `id, created_at, symbols, bot, analysis, fills, final_balance, final_equity`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run                                Run
		id, createdAt                      string
		symbolsJSON, botJSON, analysisJSON string
	)
	if err := row.Scan(&id, &createdAt, &symbolsJSON, &botJSON, &analysisJSON, &run.Fills, &run.FinalBalance, &run.FinalEquity); err != nil {
		return nil, err
	}
	var err error
	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad run id %q: %w", id, err)
	}
	if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	if err := json.Unmarshal([]byte(symbolsJSON), &run.Symbols); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(botJSON), &run.Bot); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(analysisJSON), &run.Analysis); err != nil {
		return nil, err
	}
	return &run, nil
}

// LoadRun returns the stored summary of run id.
func (s *Store) LoadRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

// ListRuns returns the latest limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LoadFills returns the fills of run id in execution order.
func (s *Store) LoadFills(ctx context.Context, id uuid.UUID) ([]backtest.Fill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step, symbol, pnl, fee_paid, balance, fill_qty, fill_price,
		       position_size, position_price, order_type
		FROM fills
		WHERE run_id = ?
		ORDER BY seq ASC
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var fills []backtest.Fill
	for rows.Next() {
		var f backtest.Fill
		var orderType string
		if err := rows.Scan(
			&f.Index, &f.Symbol, &f.Pnl, &f.FeePaid, &f.Balance, &f.FillQty, &f.FillPrice,
			&f.PositionSize, &f.PositionPrice, &orderType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		f.OrderType = orders.OrderType(orderType)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// LoadEquities returns the per-step equity and balance of run id.
func (s *Store) LoadEquities(ctx context.Context, id uuid.UUID) (equities, balances []float64, err error) {
	rows, err := s.db.QueryContext(ctx, `SELECT equity, balance FROM equities WHERE run_id = ? ORDER BY step ASC`, id.String())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query equities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var equity, balance float64
		if err := rows.Scan(&equity, &balance); err != nil {
			return nil, nil, fmt.Errorf("failed to scan equity: %w", err)
		}
		equities = append(equities, equity)
		balances = append(balances, balance)
	}
	return equities, balances, rows.Err()
}

// DeleteRun removes run id with its fills and equities.
func (s *Store) DeleteRun(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for _, table := range []string{"fills", "equities"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, id.String()); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}
	return tx.Commit()
}
