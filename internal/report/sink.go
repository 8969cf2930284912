// Package report persists run results and sends trade notifications.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencta/quant/internal/broker"
)

// ErrNoCash is returned when no external cash figure has been recorded yet
// for a spread.
var ErrNoCash = errors.New("no recorded cash for spread")

// NavPoint is one persisted daily log-return.
type NavPoint struct {
	Day    time.Time
	Return float64
}

// Sink is the append-only result store, keyed by date within a named spread
// (a strategy deployment).
type Sink interface {
	SavePositions(ctx context.Context, spread string, day time.Time, positions map[string]float64) error
	SaveReturns(ctx context.Context, spread string, returns []NavPoint) error
	SaveExecutions(ctx context.Context, spread string, executions []broker.Execution) error
	// Cash returns the externally recorded account cash and its as-of day.
	Cash(ctx context.Context, spread string) (time.Time, float64, error)
}

// PgSink stores results in Postgres.
type PgSink struct {
	pool *pgxpool.Pool
}

// NewPgSink creates a sink on an existing connection pool.
func NewPgSink(pool *pgxpool.Pool) *PgSink {
	return &PgSink{pool: pool}
}

// SavePositions upserts the day's position snapshot, one row per ticker,
// zero quantities included so flattened positions stay visible.
func (s *PgSink) SavePositions(ctx context.Context, spread string, day time.Time, positions map[string]float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO report_positions (spread, day, ticker, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (spread, day, ticker) DO UPDATE SET quantity = EXCLUDED.quantity
	`
	for ticker, quantity := range positions {
		if _, err := tx.Exec(ctx, query, spread, day, ticker, quantity); err != nil {
			return fmt.Errorf("insert position %s: %w", ticker, err)
		}
	}
	return tx.Commit(ctx)
}

// SaveReturns appends daily log-returns newer than the last stored day.
func (s *PgSink) SaveReturns(ctx context.Context, spread string, returns []NavPoint) error {
	var last *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT max(day) FROM report_returns WHERE spread = $1`, spread).Scan(&last)
	if err != nil {
		return fmt.Errorf("query last return day: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO report_returns (spread, day, log_return)
		VALUES ($1, $2, $3)
	`
	for _, point := range returns {
		if last != nil && !point.Day.After(*last) {
			continue
		}
		if _, err := tx.Exec(ctx, query, spread, point.Day, point.Return); err != nil {
			return fmt.Errorf("insert return %s: %w", point.Day.Format("2006-01-02"), err)
		}
	}
	return tx.Commit(ctx)
}

// SaveExecutions appends fills newer than the last stored fill date.
func (s *PgSink) SaveExecutions(ctx context.Context, spread string, executions []broker.Execution) error {
	if len(executions) == 0 {
		return nil
	}
	var last *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT max(day) FROM report_executions WHERE spread = $1`, spread).Scan(&last)
	if err != nil {
		return fmt.Errorf("query last execution day: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO report_executions (spread, day, ticker, quantity, price)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, e := range executions {
		if last != nil && !e.Day.After(*last) {
			continue
		}
		if _, err := tx.Exec(ctx, query, spread, e.Day, e.Ticker, e.Quantity, e.Price); err != nil {
			return fmt.Errorf("insert execution %s: %w", e.Ticker, err)
		}
	}
	return tx.Commit(ctx)
}

// Cash returns the most recent externally recorded cash figure.
func (s *PgSink) Cash(ctx context.Context, spread string) (time.Time, float64, error) {
	var day time.Time
	var cash float64
	err := s.pool.QueryRow(ctx, `
		SELECT day, cash
		FROM account_cash
		WHERE spread = $1
		ORDER BY day DESC
		LIMIT 1
	`, spread).Scan(&day, &cash)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, 0, fmt.Errorf("%s: %w", spread, ErrNoCash)
	}
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("query cash for %s: %w", spread, err)
	}
	return day, cash, nil
}
