// Package margin computes overnight margin requirements in USD, combining
// static per-instrument figures with a yearly price-level recalibration.
package margin

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/opencta/quant/internal/forex"
	"github.com/opencta/quant/internal/futures"
	"github.com/opencta/quant/internal/instruments"
	"github.com/opencta/quant/internal/marketdata"
	"github.com/opencta/quant/pkg/logger"
)

type marginKey struct {
	stem string
	year int
}

// Engine derives margin requirements from instrument metadata, front
// contract prices and FX rates. The recalibration factor is cached per
// (stem, year): margin is defined to recalibrate at most once a year.
type Engine struct {
	chains   *futures.ChainResolver
	bars     *marketdata.Resolver
	fx       *forex.Converter
	universe *instruments.Universe
	log      *logger.Logger

	mu    sync.Mutex
	cache map[marginKey]float64
}

// NewEngine creates a margin engine.
func NewEngine(chains *futures.ChainResolver, bars *marketdata.Resolver, fx *forex.Converter, universe *instruments.Universe, log *logger.Logger) *Engine {
	return &Engine{
		chains:   chains,
		bars:     bars,
		fx:       fx,
		universe: universe,
		log:      log,
		cache:    make(map[marginKey]float64),
	}
}

// AdjustmentFactor returns the yearly margin recalibration factor for stem:
// the front contract's close on day divided by the front contract's close on
// the stem's margin reference date. NaN when day is not a trading day for
// the front contract, or when the reference date has no bar. Only computed
// factors are cached, so a non-trading day does not poison the year.
func (e *Engine) AdjustmentFactor(ctx context.Context, stem string, day time.Time) float64 {
	key := marginKey{stem: stem, year: day.Year()}
	e.mu.Lock()
	if factor, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return factor
	}
	e.mu.Unlock()

	front, err := e.chains.FrontContract(ctx, stem, day)
	if err != nil {
		return math.NaN()
	}
	bar, err := e.bars.Bardata(ctx, day, marketdata.ByTicker(front.Ticker))
	if err != nil || !bar.Tradeable() {
		return math.NaN()
	}

	refDay := e.refDate(stem)
	refFront, err := e.chains.FrontContract(ctx, stem, refDay)
	if err != nil {
		return math.NaN()
	}
	refBar, err := e.bars.Bardata(ctx, refDay, marketdata.ByTicker(refFront.Ticker))
	if err != nil || !refBar.Tradeable() {
		if e.log != nil {
			e.log.WithFields(map[string]interface{}{
				"stem":     stem,
				"ref_date": refDay.Format("2006-01-02"),
			}).Warn("Margin reference date is not a trading day")
		}
		return math.NaN()
	}

	factor := bar.Repaired().Close / refBar.Repaired().Close
	e.mu.Lock()
	e.cache[key] = factor
	e.mu.Unlock()
	return factor
}

func (e *Engine) refDate(stem string) time.Time {
	if ins, ok := e.universe.Get(stem); ok {
		return ins.MarginRefDay()
	}
	return instruments.DefaultMarginRefDate
}

// OvernightInitialFuture returns the USD overnight initial margin for one
// contract of stem on day.
func (e *Engine) OvernightInitialFuture(ctx context.Context, stem string, day time.Time) float64 {
	ins, ok := e.universe.Get(stem)
	if !ok {
		return math.NaN()
	}
	return ins.OvernightInitial * e.AdjustmentFactor(ctx, stem, day) * e.fx.ToUSD(ctx, ins.Currency, day)
}

// OvernightMaintenanceFuture returns the USD overnight maintenance margin
// for one contract of stem on day.
func (e *Engine) OvernightMaintenanceFuture(ctx context.Context, stem string, day time.Time) float64 {
	ins, ok := e.universe.Get(stem)
	if !ok {
		return math.NaN()
	}
	return ins.OvernightMaintenance * e.AdjustmentFactor(ctx, stem, day) * e.fx.ToUSD(ctx, ins.Currency, day)
}

// OvernightStock returns the USD overnight margin for one share of ticker on
// day: half the close, FX-converted by the ticker's venue currency. Zero on
// a non-trading day. Initial and maintenance coincide for equities.
func (e *Engine) OvernightStock(ctx context.Context, ticker string, day time.Time) float64 {
	bar, err := e.bars.Bardata(ctx, day, marketdata.ByTicker(ticker))
	if err != nil || !bar.Tradeable() {
		return 0
	}
	currency := forex.StockCurrency(ticker)
	return bar.Repaired().Close / 2 * e.fx.ToUSD(ctx, currency, day)
}

// OvernightCoin returns the USD overnight margin for one unit of a coin on
// day: half the close. Coins trade in USD, so no FX leg. Zero on a
// non-trading day.
func (e *Engine) OvernightCoin(ctx context.Context, ticker string, day time.Time) float64 {
	bar, err := e.bars.Bardata(ctx, day, marketdata.ByTicker(ticker))
	if err != nil || !bar.Tradeable() {
		return 0
	}
	return bar.Repaired().Close / 2
}
