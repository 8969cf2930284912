// Package forex converts instrument prices into USD using vendor daily FX
// closes, memoized per (currency, day).
package forex

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opencta/quant/internal/instruments"
	"github.com/opencta/quant/internal/marketdata"
	"github.com/opencta/quant/pkg/logger"
)

// pair maps a currency to its vendor FX ticker. Some vendor pairs are quoted
// as currency-per-USD and must be inverted to get USD-per-currency.
type pair struct {
	ticker string
	invert bool
}

var pairs = map[string]pair{
	"AUD": {ticker: "USDAUD=R", invert: true},
	"CAD": {ticker: "CADUSD=R"},
	"CHF": {ticker: "CHFUSD=R"},
	"EUR": {ticker: "USDEUR=R", invert: true},
	"GBP": {ticker: "USDGBP=R", invert: true},
	"HKD": {ticker: "HKDUSD=R"},
	"JPY": {ticker: "JPYUSD=R"},
	"SGD": {ticker: "SGDUSD=R"},
}

// stockSuffixes maps a ticker's venue suffix to its trading currency.
var stockSuffixes = map[string]string{
	"AS": "EUR",
	"BR": "EUR",
	"DE": "EUR",
	"L":  "GBP",
	"MC": "EUR",
	"MI": "EUR",
	"PA": "EUR",
	"S":  "CHF",
}

// RateTickers returns the vendor tickers for every supported currency pair,
// sorted. Used by the downloader to keep FX history current.
func RateTickers() []string {
	tickers := make([]string, 0, len(pairs))
	for _, p := range pairs {
		tickers = append(tickers, p.ticker)
	}
	sort.Strings(tickers)
	return tickers
}

type fxKey struct {
	currency string
	day      string
}

// Converter resolves USD conversion rates from vendor FX bars. Rates are
// cached for the life of the process; each (currency, day) pair hits the
// vendor at most once.
type Converter struct {
	source marketdata.BarSource
	log    *logger.Logger

	mu    sync.Mutex
	cache map[fxKey]float64
}

// NewConverter creates a converter on top of a vendor FX bar source.
func NewConverter(source marketdata.BarSource, log *logger.Logger) *Converter {
	return &Converter{
		source: source,
		log:    log,
		cache:  make(map[fxKey]float64),
	}
}

// ToUSD returns the USD value of one unit of currency on day. USD is always
// 1. Unsupported currencies and vendor misses yield NaN, never an error:
// a NaN rate poisons downstream arithmetic instead of aborting the run.
func (c *Converter) ToUSD(ctx context.Context, currency string, day time.Time) float64 {
	if currency == "USD" {
		return 1
	}
	p, ok := pairs[currency]
	if !ok {
		return math.NaN()
	}

	key := fxKey{currency: currency, day: day.Format("2006-01-02")}
	c.mu.Lock()
	if rate, hit := c.cache[key]; hit {
		c.mu.Unlock()
		return rate
	}
	c.mu.Unlock()

	rate := c.fetch(ctx, p, day)
	c.mu.Lock()
	c.cache[key] = rate
	c.mu.Unlock()
	return rate
}

func (c *Converter) fetch(ctx context.Context, p pair, day time.Time) float64 {
	bar, err := c.source.Bar(ctx, p.ticker, day)
	if err != nil {
		if c.log != nil {
			c.log.WithError(err).WithField("ticker", p.ticker).Debug("FX rate unavailable")
		}
		return math.NaN()
	}
	close := bar.Repaired().Close
	if p.invert {
		return 1 / close
	}
	return close
}

// BarToUSD converts a bar's prices into USD for the instrument's currency:
// open, high, low and close are multiplied by the rate, volume divided by
// it. Bars already in USD are returned unchanged.
func (c *Converter) BarToUSD(ctx context.Context, bar marketdata.Bar, ins instruments.Instrument) marketdata.Bar {
	if ins.Currency == "" || ins.Currency == "USD" {
		return bar
	}
	rate := c.ToUSD(ctx, ins.Currency, bar.Day)
	bar.Open *= rate
	bar.High *= rate
	bar.Low *= rate
	bar.Close *= rate
	bar.Volume /= rate
	return bar
}

// StockCurrency returns the trading currency implied by a stock ticker's
// venue suffix. Tickers without a suffix trade in USD.
func StockCurrency(ticker string) string {
	idx := strings.LastIndex(ticker, ".")
	if idx < 0 {
		return "USD"
	}
	if currency, ok := stockSuffixes[ticker[idx+1:]]; ok {
		return currency
	}
	return "USD"
}
