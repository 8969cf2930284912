package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencta/quant/internal/futures"
	"github.com/opencta/quant/internal/marketdata"
)

// PgStore is the local Postgres price store the resolvers read. The
// downloader fills it from the vendor; a missing row means the vendor had
// nothing for that day, mapped to marketdata.ErrNoData.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a store on an existing connection pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Bar returns the daily bar for (ticker, day). Implements
// marketdata.BarSource.
func (s *PgStore) Bar(ctx context.Context, ticker string, day time.Time) (marketdata.Bar, error) {
	query := `
		SELECT open, high, low, close, volume
		FROM daily_bars
		WHERE ticker = $1 AND day = $2
	`

	bar := marketdata.Bar{Ticker: ticker, Day: day}
	err := s.pool.QueryRow(ctx, query, ticker, day).Scan(
		&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketdata.Bar{}, fmt.Errorf("%s on %s: %w", ticker, day.Format("2006-01-02"), marketdata.ErrNoData)
	}
	if err != nil {
		return marketdata.Bar{}, fmt.Errorf("query bar for %s: %w", ticker, err)
	}
	return bar, nil
}

// SaveBars upserts daily bars, last write wins.
func (s *PgStore) SaveBars(ctx context.Context, bars []marketdata.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO daily_bars (ticker, day, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ticker, day) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`
	for _, bar := range bars {
		if _, err := tx.Exec(ctx, query,
			bar.Ticker, bar.Day, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume); err != nil {
			return fmt.Errorf("insert bar %s/%s: %w", bar.Ticker, bar.Day.Format("2006-01-02"), err)
		}
	}
	return tx.Commit(ctx)
}

// Chain returns the stem's full contract chain ascending by last trade
// date. Implements futures.ChainSource.
func (s *PgStore) Chain(ctx context.Context, stem string) ([]futures.Contract, error) {
	query := `
		SELECT ticker, last_trade_date, trading_enabled
		FROM expiry_chains
		WHERE stem = $1
		ORDER BY last_trade_date
	`

	rows, err := s.pool.Query(ctx, query, stem)
	if err != nil {
		return nil, fmt.Errorf("query chain for %s: %w", stem, err)
	}
	defer rows.Close()

	var chain []futures.Contract
	for rows.Next() {
		c := futures.Contract{Stem: stem}
		if err := rows.Scan(&c.Ticker, &c.LastTradeDate, &c.TradingEnabled); err != nil {
			return nil, fmt.Errorf("scan chain row: %w", err)
		}
		chain = append(chain, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chain rows: %w", err)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("chain for %s: %w", stem, futures.ErrNoSuchStem)
	}
	return chain, nil
}

// SaveChain replaces the stem's stored chain.
func (s *PgStore) SaveChain(ctx context.Context, stem string, chain []futures.Contract) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM expiry_chains WHERE stem = $1`, stem); err != nil {
		return fmt.Errorf("clear chain for %s: %w", stem, err)
	}
	query := `
		INSERT INTO expiry_chains (stem, ticker, last_trade_date, trading_enabled)
		VALUES ($1, $2, $3, $4)
	`
	for _, c := range chain {
		if _, err := tx.Exec(ctx, query, stem, c.Ticker, c.LastTradeDate, c.TradingEnabled); err != nil {
			return fmt.Errorf("insert contract %s: %w", c.Ticker, err)
		}
	}
	return tx.Commit(ctx)
}

// LastBarDay returns the most recent stored day for ticker, or zero with
// false when the store has none. The downloader uses it to resume
// incremental fetches.
func (s *PgStore) LastBarDay(ctx context.Context, ticker string) (time.Time, bool, error) {
	var day *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT max(day) FROM daily_bars WHERE ticker = $1`, ticker).Scan(&day)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last bar day for %s: %w", ticker, err)
	}
	if day == nil {
		return time.Time{}, false, nil
	}
	return *day, true, nil
}
