package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/opencta/quant/internal/futures"
	"github.com/opencta/quant/internal/instruments"
	"github.com/opencta/quant/pkg/logger"
)

// rollHorizon is how far ahead of the front contract's last trade date the
// roll decision starts being considered.
const rollHorizon = 40 * 24 * time.Hour

// BarSource supplies one raw daily bar per ticker. Implementations return
// ErrNoData (possibly wrapped) when the day is absent.
type BarSource interface {
	Bar(ctx context.Context, ticker string, day time.Time) (Bar, error)
}

// Query selects which instrument a bar request targets.
type Query struct {
	ticker string
	stem   string
	rank   int
	byRank bool
}

// ByTicker targets a concrete ticker (futures contract, stock or coin).
func ByTicker(ticker string) Query { return Query{ticker: ticker} }

// ByStemRank targets the rank'th eligible contract of a futures stem
// (rank 0 = front).
func ByStemRank(stem string, rank int) Query {
	return Query{stem: stem, rank: rank, byRank: true}
}

// Resolver answers daily bar, trading-day and roll questions on top of a raw
// bar source and the contract chain resolver.
type Resolver struct {
	source   BarSource
	chains   *futures.ChainResolver
	universe *instruments.Universe
	log      *logger.Logger
}

// NewResolver creates a market data resolver.
func NewResolver(source BarSource, chains *futures.ChainResolver, universe *instruments.Universe, log *logger.Logger) *Resolver {
	return &Resolver{source: source, chains: chains, universe: universe, log: log}
}

// Bardata returns the repaired daily bar for the query's instrument.
// ErrNotStarted when day precedes the instrument's start date, ErrNoData
// when the vendor has nothing.
func (r *Resolver) Bardata(ctx context.Context, day time.Time, q Query) (Bar, error) {
	ticker := q.ticker
	stem := q.stem
	if q.byRank {
		contract, err := r.chains.Contract(ctx, stem, day, q.rank)
		if err != nil {
			return Bar{}, err
		}
		ticker = contract.Ticker
	} else if ins, ok := r.universe.Get(ticker); ok {
		stem = ins.Stem
	}

	if stem != "" {
		if ins, ok := r.universe.Get(stem); ok && day.Before(ins.StartDay()) {
			return Bar{}, fmt.Errorf("%s on %s: %w", ticker, day.Format("2006-01-02"), ErrNotStarted)
		}
	}

	bar, err := r.source.Bar(ctx, ticker, day)
	if err != nil {
		return Bar{}, err
	}
	return bar.Repaired(), nil
}

// IsTradingDay reports whether the query's instrument has a usable close on
// day. A zero Query falls back to the exchange holiday calendar.
func (r *Resolver) IsTradingDay(ctx context.Context, day time.Time, q Query) bool {
	if q == (Query{}) {
		return IsBusinessDay(day)
	}
	bar, err := r.Bardata(ctx, day, q)
	if err != nil {
		return false
	}
	return bar.Tradeable()
}

// StartDay walks backward from firstTradingDay until window calendar trading
// days have been counted, returning the boundary day. Used to warm up
// indicators before a backtest's first day.
func (r *Resolver) StartDay(firstTradingDay time.Time, window int) time.Time {
	day := firstTradingDay
	for counted := 0; counted < window; {
		day = day.AddDate(0, 0, -1)
		if IsBusinessDay(day) {
			counted++
		}
	}
	return day
}

// ShouldRollToday decides whether a position in the stem's front contract
// should move to the next contract on day.
//
// While the front contract's last trade date is more than 40 days out the
// answer is always false. Inside that horizon the remaining runway is the
// distance to the last trade date shortened by the stem's roll offset; if
// any non-weekend day in that runway has both the front and next contracts
// independently tradeable, there is still a clean day to roll on later and
// the answer is false. With no such day left, roll today.
func (r *Resolver) ShouldRollToday(ctx context.Context, stem string, day time.Time) (bool, error) {
	front, err := r.chains.Contract(ctx, stem, day, 0)
	if err != nil {
		return false, err
	}
	if day.Add(rollHorizon).Before(front.LastTradeDate) {
		return false, nil
	}
	next, err := r.chains.Contract(ctx, stem, day, 1)
	if err != nil {
		return false, err
	}

	delta := front.LastTradeDate.Sub(day) + r.universe.RollOffset(stem)
	for d := day.AddDate(0, 0, 1); !d.After(day.Add(delta)); d = d.AddDate(0, 0, 1) {
		if IsWeekend(d) {
			continue
		}
		if r.IsTradingDay(ctx, d, ByTicker(front.Ticker)) && r.IsTradingDay(ctx, d, ByTicker(next.Ticker)) {
			return false, nil
		}
	}
	if r.log != nil {
		r.log.WithFields(map[string]interface{}{
			"stem":  stem,
			"day":   day.Format("2006-01-02"),
			"front": front.Ticker,
			"next":  next.Ticker,
		}).Debug("Rolling front contract")
	}
	return true, nil
}
