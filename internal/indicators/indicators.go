// Package indicators maintains per-stem USD price histories and derives the
// momentum, volatility and rebalancing-cadence signals strategies consume.
package indicators

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/opencta/quant/internal/forex"
	"github.com/opencta/quant/internal/instruments"
	"github.com/opencta/quant/internal/marketdata"
)

const (
	// ReferenceAnnualVolatility is the 20% annualized volatility the
	// inverse-volatility weight normalizes against.
	ReferenceAnnualVolatility = 0.2

	// MomentumWindow is six business months of daily bars.
	MomentumWindow = 125

	// TradingDaysPerYear annualizes daily return statistics.
	TradingDaysPerYear = 250

	// TrueRangeWindow is the default ATR lookback.
	TrueRangeWindow = 14
)

// Frequency is a rebalancing cadence.
type Frequency string

const (
	Monthly Frequency = "monthly"
	Weekly  Frequency = "weekly"
)

// Indicators owns the append-only per-stem bar history and the trading-day
// gate. Bars are FX-normalized on the way in so every derived signal is in
// USD terms.
type Indicators struct {
	fx       *forex.Converter
	universe *instruments.Universe

	mu          sync.Mutex
	bars        map[string][]marketdata.Bar
	tradingDays map[string]map[string]bool
}

// New creates an empty indicator store.
func New(fx *forex.Converter, universe *instruments.Universe) *Indicators {
	return &Indicators{
		fx:          fx,
		universe:    universe,
		bars:        make(map[string][]marketdata.Bar),
		tradingDays: make(map[string]map[string]bool),
	}
}

// SetBar FX-normalizes the bar and appends it to the stem's history. Bars
// must arrive in date order; there is no dedup, appending the same day twice
// is a caller error.
func (i *Indicators) SetBar(ctx context.Context, stem string, bar marketdata.Bar) {
	if ins, ok := i.universe.Get(stem); ok {
		bar = i.fx.BarToUSD(ctx, bar, ins)
	}
	i.mu.Lock()
	i.bars[stem] = append(i.bars[stem], bar)
	i.mu.Unlock()
}

// History returns the number of bars seen for stem.
func (i *Indicators) History(stem string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.bars[stem])
}

// LastClose returns the most recent USD close for stem, NaN with no history.
func (i *Indicators) LastClose(stem string) float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	bars := i.bars[stem]
	if len(bars) == 0 {
		return math.NaN()
	}
	return bars[len(bars)-1].Close
}

func (i *Indicators) closes(stem string) []float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	bars := i.bars[stem]
	closes := make([]float64, len(bars))
	for idx, b := range bars {
		closes[idx] = b.Close
	}
	return closes
}

// Momentum returns the window-bar price return scaled by the volatility
// weight. NaN while the history is shorter than window.
func (i *Indicators) Momentum(stem string, window int) float64 {
	closes := i.closes(stem)
	if len(closes) < window {
		return math.NaN()
	}
	ret := closes[len(closes)-1]/closes[len(closes)-window] - 1
	return ret * i.VolatilityWeight(stem, window)
}

// VolatilityWeight returns the target-volatility scalar
// 0.2 / (std(log returns) * sqrt(250)) over the last window closes,
// excluding the most recent one. NaN while the history is shorter than
// window.
func (i *Indicators) VolatilityWeight(stem string, window int) float64 {
	closes := i.closes(stem)
	if len(closes) < window {
		return math.NaN()
	}
	tail := closes[len(closes)-window : len(closes)-1]
	returns := make([]float64, len(tail)-1)
	for idx := 1; idx < len(tail); idx++ {
		returns[idx-1] = math.Log(tail[idx]) - math.Log(tail[idx-1])
	}
	return ReferenceAnnualVolatility / (populationStd(returns) * math.Sqrt(TradingDaysPerYear))
}

// AverageTrueRange returns the window-day ATR of the stem's USD history, NaN
// while the history is shorter than window+1 bars.
func (i *Indicators) AverageTrueRange(stem string, window int) float64 {
	i.mu.Lock()
	bars := i.bars[stem]
	high := make([]float64, len(bars))
	low := make([]float64, len(bars))
	close := make([]float64, len(bars))
	for idx, b := range bars {
		high[idx] = b.High
		low[idx] = b.Low
		close[idx] = b.Close
	}
	i.mu.Unlock()

	if len(bars) < window+1 {
		return math.NaN()
	}
	atr := talib.Atr(high, low, close, window)
	return atr[len(atr)-1]
}

// ShouldTradeToday is a one-shot-per-period latch: the first call for a
// (stem, period) returns true and consumes the period, every later call in
// the same period returns false. The gate never resets within a run.
func (i *Indicators) ShouldTradeToday(day time.Time, stem string, freq Frequency) bool {
	var key string
	switch freq {
	case Weekly:
		year, week := day.ISOWeek()
		key = fmt.Sprintf("%d-%02d", year, week)
	default:
		key = day.Format("2006-01")
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	seen, ok := i.tradingDays[stem]
	if !ok {
		seen = make(map[string]bool)
		i.tradingDays[stem] = seen
	}
	if seen[key] {
		return false
	}
	seen[key] = true
	return true
}

func populationStd(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}
