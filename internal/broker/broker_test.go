package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencta/quant/internal/forex"
	"github.com/opencta/quant/internal/futures"
	"github.com/opencta/quant/internal/instruments"
	"github.com/opencta/quant/internal/margin"
	"github.com/opencta/quant/internal/marketdata"
)

type fakeChains struct{}

func (fakeChains) Chain(_ context.Context, stem string) ([]futures.Contract, error) {
	if stem != "ES" {
		return nil, futures.ErrNoSuchStem
	}
	return []futures.Contract{
		{Stem: "ES", Ticker: "ESM24", LastTradeDate: day("2024-06-21"), TradingEnabled: true},
		{Stem: "ES", Ticker: "ESU24", LastTradeDate: day("2024-09-20"), TradingEnabled: true},
	}, nil
}

type fakeBars struct {
	closes map[string]float64 // "ticker|2006-01-02"
}

func (f *fakeBars) Bar(_ context.Context, ticker string, d time.Time) (marketdata.Bar, error) {
	close, ok := f.closes[ticker+"|"+d.Format("2006-01-02")]
	if !ok {
		return marketdata.Bar{}, fmt.Errorf("%s: %w", ticker, marketdata.ErrNoData)
	}
	return marketdata.Bar{Ticker: ticker, Day: d, Open: close, High: close, Low: close, Close: close, Volume: 100}, nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newSim(t *testing.T, cash float64, noCheck bool, closes map[string]float64) *Sim {
	t.Helper()
	u, err := instruments.Parse([]byte(`
instruments:
  - stem: ES
    name: E-mini S&P 500
    type: future
    point_value: 50
    overnight_initial: 12000
    overnight_maintenance: 11000
    market_impact: 0.0001
  - stem: SPY
    name: SPDR S&P 500 ETF
    type: stock
  - stem: BTC
    name: Bitcoin
    type: coin
`))
	require.NoError(t, err)

	bars := &fakeBars{closes: closes}
	chains := futures.NewChainResolver(fakeChains{}, u)
	resolver := marketdata.NewResolver(bars, chains, u, nil)
	fx := forex.NewConverter(bars, nil)
	margins := margin.NewEngine(chains, resolver, fx, u, nil)
	return NewSim(cash, noCheck, resolver, fx, margins, u, nil)
}

func TestFuturesVariationSettlement(t *testing.T) {
	sim := newSim(t, 1e6, true, map[string]float64{
		"ESM24|2024-04-01": 5000,
		"ESM24|2024-04-02": 5010,
		"ESM24|2024-04-03": 4990,
	})
	ctx := context.Background()

	require.NoError(t, sim.AdvanceTo(ctx, day("2024-04-01")))
	require.NoError(t, sim.MarketOrder(ctx, "ES", "ESM24", 2))

	// Fill at 5000 * 1.0001 = 5000.5; settlement to 5010.
	require.NoError(t, sim.AdvanceTo(ctx, day("2024-04-02")))
	assert.InDelta(t, 1e6+2*(5010-5000.5)*50, sim.NAV(), 1e-6)

	// Then down to 4990.
	require.NoError(t, sim.AdvanceTo(ctx, day("2024-04-03")))
	assert.InDelta(t, 1e6+2*(4990-5000.5)*50, sim.NAV(), 1e-6)
}

func TestFuturesCloseRealizesPnl(t *testing.T) {
	sim := newSim(t, 1e6, true, map[string]float64{
		"ESM24|2024-04-01": 5000,
		"ESM24|2024-04-02": 5100,
	})
	ctx := context.Background()

	require.NoError(t, sim.AdvanceTo(ctx, day("2024-04-01")))
	require.NoError(t, sim.MarketOrder(ctx, "ES", "ESM24", 1))
	require.NoError(t, sim.AdvanceTo(ctx, day("2024-04-02")))
	require.NoError(t, sim.MarketOrder(ctx, "ES", "ESM24", -1))

	assert.Equal(t, 0.0, sim.Position("ESM24"))
	// Long fill 5000.5, settled to 5100, exit fill 5100*(1-0.0001)=5099.49.
	want := 1e6 + (5100-5000.5)*50 + (5099.49-5100)*50
	assert.InDelta(t, want, sim.NAV(), 1e-6)
}

func TestStockOrderMovesCash(t *testing.T) {
	sim := newSim(t, 1e6, true, map[string]float64{
		"SPY|2024-04-01": 500,
	})
	ctx := context.Background()

	require.NoError(t, sim.AdvanceTo(ctx, day("2024-04-01")))
	require.NoError(t, sim.MarketOrder(ctx, "SPY", "SPY", 100))

	// Cash drops by the fill notional, NAV only by the impact cost.
	fill := 500 * (1 + instruments.DefaultMarketImpact)
	assert.InDelta(t, 1e6-100*fill, sim.Cash(), 1e-6)
	assert.InDelta(t, 1e6-100*(fill-500), sim.NAV(), 1e-6)
}

func TestOrderOnNonTradingDayFails(t *testing.T) {
	sim := newSim(t, 1e6, true, map[string]float64{})
	ctx := context.Background()

	require.NoError(t, sim.AdvanceTo(ctx, day("2024-04-01")))
	err := sim.MarketOrder(ctx, "ES", "ESM24", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, marketdata.ErrNoData)
	assert.False(t, sim.HasExecutionToday())
}

func TestMarginCheckRejectsOversizedOrder(t *testing.T) {
	sim := newSim(t, 20000, false, map[string]float64{
		"ESM24|2024-04-01": 5000,
		"ESM24|2020-01-06": 3200,
	})
	ctx := context.Background()
	require.NoError(t, sim.AdvanceTo(ctx, day("2024-04-01")))

	// Initial margin 12000 * (5000/3200) = 18750 per contract.
	err := sim.MarketOrder(ctx, "ES", "ESM24", 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientMargin)

	require.NoError(t, sim.MarketOrder(ctx, "ES", "ESM24", 1))
}

func TestNoCheckSkipsMargin(t *testing.T) {
	sim := newSim(t, 1000, true, map[string]float64{
		"ESM24|2024-04-01": 5000,
	})
	ctx := context.Background()
	require.NoError(t, sim.AdvanceTo(ctx, day("2024-04-01")))
	require.NoError(t, sim.MarketOrder(ctx, "ES", "ESM24", 10))
}

func TestExecutionsRecorded(t *testing.T) {
	sim := newSim(t, 1e6, true, map[string]float64{
		"ESM24|2024-04-01": 5000,
	})
	ctx := context.Background()
	require.NoError(t, sim.AdvanceTo(ctx, day("2024-04-01")))
	require.NoError(t, sim.MarketOrder(ctx, "ES", "ESM24", 3))

	execs := sim.Executions()
	require.Len(t, execs, 1)
	assert.Equal(t, "ESM24", execs[0].Ticker)
	assert.Equal(t, 3.0, execs[0].Quantity)
	assert.True(t, sim.HasExecutionToday())

	// The flag resets on the next day.
	require.NoError(t, sim.AdvanceTo(ctx, day("2024-04-02")))
	assert.False(t, sim.HasExecutionToday())
}

func TestApplyCashAdjustment(t *testing.T) {
	sim := newSim(t, 1000, true, nil)
	sim.ApplyCashAdjustment(1.5)
	assert.InDelta(t, 1500.0, sim.NAV(), 1e-9)
}
