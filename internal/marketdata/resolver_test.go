package marketdata

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencta/quant/internal/futures"
	"github.com/opencta/quant/internal/instruments"
)

type fakeChains struct {
	chains map[string][]futures.Contract
}

func (f *fakeChains) Chain(_ context.Context, stem string) ([]futures.Contract, error) {
	chain, ok := f.chains[stem]
	if !ok {
		return nil, futures.ErrNoSuchStem
	}
	return chain, nil
}

// fakeBars scripts bars per ticker as half-open trading ranges: a ticker
// trades every non-weekend day in [from, until].
type fakeBars struct {
	ranges map[string][2]time.Time
	bars   map[string]Bar // "ticker|2006-01-02" overrides
}

func (f *fakeBars) Bar(_ context.Context, ticker string, day time.Time) (Bar, error) {
	if bar, ok := f.bars[ticker+"|"+day.Format("2006-01-02")]; ok {
		return bar, nil
	}
	r, ok := f.ranges[ticker]
	if !ok || day.Before(r[0]) || day.After(r[1]) || IsWeekend(day) {
		return Bar{}, fmt.Errorf("%s on %s: %w", ticker, day.Format("2006-01-02"), ErrNoData)
	}
	return Bar{Ticker: ticker, Day: day, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000}, nil
}

func rollUniverse(t *testing.T) *instruments.Universe {
	t.Helper()
	u, err := instruments.Parse([]byte(`
instruments:
  - stem: ES
    name: E-mini S&P 500
    type: future
    point_value: 50
    overnight_initial: 12000
    overnight_maintenance: 11000
    start_date: 2000-01-03
`))
	require.NoError(t, err)
	return u
}

func rollResolver(t *testing.T, bars *fakeBars) *Resolver {
	t.Helper()
	chains := futures.NewChainResolver(&fakeChains{chains: map[string][]futures.Contract{
		"ES": {
			{Stem: "ES", Ticker: "ESM24", LastTradeDate: date("2024-06-21"), TradingEnabled: true},
			{Stem: "ES", Ticker: "ESU24", LastTradeDate: date("2024-09-20"), TradingEnabled: true},
			{Stem: "ES", Ticker: "ESZ24", LastTradeDate: date("2024-12-20"), TradingEnabled: true},
		},
	}}, rollUniverse(t))
	return NewResolver(bars, chains, rollUniverse(t), nil)
}

func bothTrading() *fakeBars {
	return &fakeBars{ranges: map[string][2]time.Time{
		"ESM24": {date("2024-01-02"), date("2024-06-21")},
		"ESU24": {date("2024-01-02"), date("2024-09-20")},
		"ESZ24": {date("2024-01-02"), date("2024-12-20")},
	}}
}

func TestBardataByTicker(t *testing.T) {
	r := rollResolver(t, bothTrading())
	bar, err := r.Bardata(context.Background(), date("2024-05-01"), ByTicker("ESM24"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, bar.Close)
}

func TestBardataByStemRank(t *testing.T) {
	r := rollResolver(t, bothTrading())
	bar, err := r.Bardata(context.Background(), date("2024-07-01"), ByStemRank("ES", 0))
	require.NoError(t, err)
	assert.Equal(t, "ESU24", bar.Ticker)
}

func TestBardataNotStarted(t *testing.T) {
	r := rollResolver(t, bothTrading())
	_, err := r.Bardata(context.Background(), date("1999-05-03"), ByTicker("ES"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestBardataNoData(t *testing.T) {
	r := rollResolver(t, bothTrading())
	_, err := r.Bardata(context.Background(), date("2024-05-04"), ByTicker("ESM24")) // Saturday
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestBardataRepairsClose(t *testing.T) {
	bars := bothTrading()
	bars.bars = map[string]Bar{
		"ESM24|2024-05-01": {Ticker: "ESM24", Open: 12, High: 15, Low: 10, Close: math.NaN(), Volume: 100},
	}
	r := rollResolver(t, bars)
	bar, err := r.Bardata(context.Background(), date("2024-05-01"), ByTicker("ESM24"))
	require.NoError(t, err)
	assert.Equal(t, 12.0, bar.Close)
}

func TestIsTradingDayCalendarFallback(t *testing.T) {
	r := rollResolver(t, bothTrading())
	assert.False(t, r.IsTradingDay(context.Background(), date("2024-07-04"), Query{}))
	assert.True(t, r.IsTradingDay(context.Background(), date("2024-07-05"), Query{}))
}

func TestStartDayCountsBusinessDays(t *testing.T) {
	r := rollResolver(t, bothTrading())
	// Five business days back from Monday 2024-04-08 is the prior Monday.
	assert.Equal(t, date("2024-04-01"), r.StartDay(date("2024-04-08"), 5))
}

func TestShouldRollTodayOutsideHorizon(t *testing.T) {
	r := rollResolver(t, bothTrading())
	// 2024-03-01 is 112 days before the front LTD, well outside the horizon.
	roll, err := r.ShouldRollToday(context.Background(), "ES", date("2024-03-01"))
	require.NoError(t, err)
	assert.False(t, roll)
}

func TestShouldRollTodayWithCoTradingDaysLeft(t *testing.T) {
	r := rollResolver(t, bothTrading())
	// Inside the horizon but front and next both trade tomorrow.
	roll, err := r.ShouldRollToday(context.Background(), "ES", date("2024-05-20"))
	require.NoError(t, err)
	assert.False(t, roll)
}

func TestShouldRollTodayWhenFrontStopsTrading(t *testing.T) {
	bars := bothTrading()
	// Front goes dark after 2024-05-15: no co-trading day remains in the
	// scan window 2024-05-17..2024-05-21.
	bars.ranges["ESM24"] = [2]time.Time{date("2024-01-02"), date("2024-05-15")}
	r := rollResolver(t, bars)
	roll, err := r.ShouldRollToday(context.Background(), "ES", date("2024-05-16"))
	require.NoError(t, err)
	assert.True(t, roll)
}

func TestShouldRollTodayMonotone(t *testing.T) {
	bars := bothTrading()
	bars.ranges["ESM24"] = [2]time.Time{date("2024-01-02"), date("2024-05-20")}
	r := rollResolver(t, bars)

	rolled := false
	for d := date("2024-05-13"); d.Before(date("2024-05-28")); d = d.AddDate(0, 0, 1) {
		if IsWeekend(d) {
			continue
		}
		roll, err := r.ShouldRollToday(context.Background(), "ES", d)
		require.NoError(t, err)
		if rolled {
			assert.True(t, roll, "roll answer regressed on %s", d.Format("2006-01-02"))
		}
		rolled = rolled || roll
	}
	assert.True(t, rolled)
}
