package margin

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencta/quant/internal/forex"
	"github.com/opencta/quant/internal/futures"
	"github.com/opencta/quant/internal/instruments"
	"github.com/opencta/quant/internal/marketdata"
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

type fakeBars struct {
	closes map[string]float64 // "ticker|2006-01-02" -> close
	calls  int
}

func (f *fakeBars) Bar(_ context.Context, ticker string, day time.Time) (marketdata.Bar, error) {
	f.calls++
	close, ok := f.closes[ticker+"|"+day.Format("2006-01-02")]
	if !ok {
		return marketdata.Bar{}, fmt.Errorf("%s: %w", ticker, marketdata.ErrNoData)
	}
	return marketdata.Bar{
		Ticker: ticker, Day: day,
		Open: close, High: close, Low: close, Close: close, Volume: 100,
	}, nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func marginUniverse(t *testing.T) *instruments.Universe {
	t.Helper()
	u, err := instruments.Parse([]byte(`
instruments:
  - stem: ES
    name: E-mini S&P 500
    type: future
    point_value: 50
    overnight_initial: 12000
    overnight_maintenance: 11000
  - stem: SPY
    name: SPDR S&P 500 ETF
    type: stock
  - stem: BTC
    name: Bitcoin
    type: coin
`))
	require.NoError(t, err)
	return u
}

func newEngine(t *testing.T, bars *fakeBars) *Engine {
	t.Helper()
	u := marginUniverse(t)
	chains := futures.NewChainResolver(&fakeChains{chains: map[string][]futures.Contract{
		"ES": {
			{Stem: "ES", Ticker: "ESH20", LastTradeDate: day("2020-03-20"), TradingEnabled: true},
			{Stem: "ES", Ticker: "ESM24", LastTradeDate: day("2024-06-21"), TradingEnabled: true},
			{Stem: "ES", Ticker: "ESU24", LastTradeDate: day("2024-09-20"), TradingEnabled: true},
		},
	}}, u)
	resolver := marketdata.NewResolver(bars, chains, u, nil)
	fx := forex.NewConverter(bars, nil)
	return NewEngine(chains, resolver, fx, u, nil)
}

func TestAdjustmentFactor(t *testing.T) {
	bars := &fakeBars{closes: map[string]float64{
		"ESM24|2024-04-01": 5200,
		"ESH20|2020-01-06": 3200,
	}}
	e := newEngine(t, bars)

	factor := e.AdjustmentFactor(context.Background(), "ES", day("2024-04-01"))
	assert.InDelta(t, 5200.0/3200.0, factor, 1e-12)
}

func TestAdjustmentFactorCachedPerYear(t *testing.T) {
	bars := &fakeBars{closes: map[string]float64{
		"ESM24|2024-04-01": 5200,
		"ESH20|2020-01-06": 3200,
	}}
	e := newEngine(t, bars)

	e.AdjustmentFactor(context.Background(), "ES", day("2024-04-01"))
	callsAfterFirst := bars.calls
	e.AdjustmentFactor(context.Background(), "ES", day("2024-04-01"))
	assert.Equal(t, callsAfterFirst, bars.calls)
}

func TestAdjustmentFactorNonTradingDayNotCached(t *testing.T) {
	bars := &fakeBars{closes: map[string]float64{
		"ESM24|2024-04-02": 5200,
		"ESH20|2020-01-06": 3200,
	}}
	e := newEngine(t, bars)

	// 2024-04-01 has no bar: NaN, and the miss must not poison the year.
	assert.True(t, math.IsNaN(e.AdjustmentFactor(context.Background(), "ES", day("2024-04-01"))))
	factor := e.AdjustmentFactor(context.Background(), "ES", day("2024-04-02"))
	assert.InDelta(t, 5200.0/3200.0, factor, 1e-12)
}

func TestAdjustmentFactorReferenceDateNotTrading(t *testing.T) {
	bars := &fakeBars{closes: map[string]float64{
		"ESM24|2024-04-01": 5200,
	}}
	e := newEngine(t, bars)
	assert.True(t, math.IsNaN(e.AdjustmentFactor(context.Background(), "ES", day("2024-04-01"))))
}

func TestOvernightFuture(t *testing.T) {
	bars := &fakeBars{closes: map[string]float64{
		"ESM24|2024-04-01": 4800,
		"ESH20|2020-01-06": 3200,
	}}
	e := newEngine(t, bars)

	initial := e.OvernightInitialFuture(context.Background(), "ES", day("2024-04-01"))
	assert.InDelta(t, 12000*1.5, initial, 1e-9)

	maintenance := e.OvernightMaintenanceFuture(context.Background(), "ES", day("2024-04-01"))
	assert.InDelta(t, 11000*1.5, maintenance, 1e-9)
}

func TestOvernightFutureUnknownStem(t *testing.T) {
	e := newEngine(t, &fakeBars{})
	assert.True(t, math.IsNaN(e.OvernightInitialFuture(context.Background(), "ZZ", day("2024-04-01"))))
}

func TestOvernightStock(t *testing.T) {
	bars := &fakeBars{closes: map[string]float64{
		"SPY|2024-04-01": 500,
	}}
	e := newEngine(t, bars)
	assert.InDelta(t, 250.0, e.OvernightStock(context.Background(), "SPY", day("2024-04-01")), 1e-9)
}

func TestOvernightStockNonTradingDay(t *testing.T) {
	e := newEngine(t, &fakeBars{})
	assert.Equal(t, 0.0, e.OvernightStock(context.Background(), "SPY", day("2024-04-01")))
}

func TestOvernightCoin(t *testing.T) {
	bars := &fakeBars{closes: map[string]float64{
		"BTC|2024-04-01": 60000,
	}}
	e := newEngine(t, bars)
	assert.InDelta(t, 30000.0, e.OvernightCoin(context.Background(), "BTC", day("2024-04-01")), 1e-9)
}
