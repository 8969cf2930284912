// Package marketdata resolves daily OHLCV bars for tickers and futures
// ranks, repairs missing closes, and answers trading-day and roll questions.
package marketdata

import (
	"errors"
	"math"
	"sort"
	"time"
)

// ErrNoData is returned when the vendor has no bar for the requested day.
var ErrNoData = errors.New("no market data for day")

// ErrNotStarted is returned when the requested day precedes the instrument's
// configured start date.
var ErrNotStarted = errors.New("instrument not yet trading")

// Bar is one daily OHLCV bar. Missing fields are NaN, never zero.
type Bar struct {
	Ticker string
	Day    time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Repaired returns the bar with a missing close reconstructed from the other
// price fields. The close can be repaired when volume is present and at
// least one of open/high/low is: the repaired value is the median of the
// non-NaN price fields. A bar that cannot be repaired is returned unchanged.
func (b Bar) Repaired() Bar {
	if !math.IsNaN(b.Close) || math.IsNaN(b.Volume) {
		return b
	}
	prices := make([]float64, 0, 3)
	for _, p := range []float64{b.Open, b.High, b.Low} {
		if !math.IsNaN(p) {
			prices = append(prices, p)
		}
	}
	if len(prices) == 0 {
		return b
	}
	sort.Float64s(prices)
	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		b.Close = prices[mid]
	} else {
		b.Close = (prices[mid-1] + prices[mid]) / 2
	}
	return b
}

// Tradeable reports whether the bar carries a usable close after repair.
func (b Bar) Tradeable() bool {
	return !math.IsNaN(b.Repaired().Close)
}
