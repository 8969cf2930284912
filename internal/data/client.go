// Package data holds the vendor collaborators: the HTTP market data client,
// the Postgres price store the resolvers read, and the bulk downloader that
// fills the store from the vendor.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/opencta/quant/internal/futures"
	"github.com/opencta/quant/internal/marketdata"
	"github.com/opencta/quant/pkg/config"
	"github.com/opencta/quant/pkg/httputil"
	"github.com/opencta/quant/pkg/logger"
)

// Client talks to the market data vendor's JSON API.
type Client struct {
	http    *httputil.Client
	baseURL string
	logger  *logger.Logger
}

// NewClient creates a vendor client from the vendor config: base URL, bearer
// token and the request rate the vendor quota allows.
func NewClient(cfg config.VendorConfig, log *logger.Logger) *Client {
	httpClient := httputil.New(log).
		WithRateLimit(cfg.RequestsPerSecond, 1).
		WithHeader("Authorization", "Bearer "+cfg.SecretKey)
	return &Client{
		http:    httpClient,
		baseURL: cfg.BaseURL,
		logger:  log,
	}
}

type barRow struct {
	Date   string   `json:"date"`
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  *float64 `json:"close"`
	Volume *float64 `json:"volume"`
}

type barsResponse struct {
	Bars []barRow `json:"bars"`
}

type contractRow struct {
	Ticker         string `json:"ticker"`
	LastTradeDate  string `json:"last_trade_date"`
	TradingEnabled bool   `json:"trading_enabled"`
}

type chainResponse struct {
	Contracts []contractRow `json:"contracts"`
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// DailyBars fetches the ticker's daily bars for [start, end] inclusive.
// A vendor 404 maps to marketdata.ErrNoData.
func (c *Client) DailyBars(ctx context.Context, ticker string, start, end time.Time) ([]marketdata.Bar, error) {
	u := fmt.Sprintf("%s/daily/%s?start=%s&end=%s",
		c.baseURL, url.PathEscape(ticker),
		start.Format("2006-01-02"), end.Format("2006-01-02"))

	var parsed barsResponse
	if err := c.getJSON(ctx, u, &parsed); err != nil {
		return nil, fmt.Errorf("daily bars for %s: %w", ticker, err)
	}

	bars := make([]marketdata.Bar, 0, len(parsed.Bars))
	for _, row := range parsed.Bars {
		day, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			return nil, fmt.Errorf("daily bars for %s: bad date %q: %w", ticker, row.Date, err)
		}
		bars = append(bars, marketdata.Bar{
			Ticker: ticker,
			Day:    day,
			Open:   orNaN(row.Open),
			High:   orNaN(row.High),
			Low:    orNaN(row.Low),
			Close:  orNaN(row.Close),
			Volume: orNaN(row.Volume),
		})
	}
	return bars, nil
}

// Chain fetches the stem's full contract chain, ascending by last trade
// date. A vendor 404 maps to futures.ErrNoSuchStem.
func (c *Client) Chain(ctx context.Context, stem string) ([]futures.Contract, error) {
	u := fmt.Sprintf("%s/chain/%s", c.baseURL, url.PathEscape(stem))

	var parsed chainResponse
	if err := c.getJSON(ctx, u, &parsed); err != nil {
		if err == errNotFound {
			return nil, fmt.Errorf("chain for %s: %w", stem, futures.ErrNoSuchStem)
		}
		return nil, fmt.Errorf("chain for %s: %w", stem, err)
	}

	chain := make([]futures.Contract, 0, len(parsed.Contracts))
	for _, row := range parsed.Contracts {
		ltd, err := time.Parse("2006-01-02", row.LastTradeDate)
		if err != nil {
			return nil, fmt.Errorf("chain for %s: bad last trade date %q: %w", stem, row.LastTradeDate, err)
		}
		chain = append(chain, futures.Contract{
			Stem:           stem,
			Ticker:         row.Ticker,
			LastTradeDate:  ltd,
			TradingEnabled: row.TradingEnabled,
		})
	}
	return chain, nil
}

// Health checks the vendor endpoint is reachable.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.Get(ctx, c.baseURL+"/health")
	if err != nil {
		return fmt.Errorf("vendor health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vendor health check: status %d", resp.StatusCode)
	}
	return nil
}

var errNotFound = fmt.Errorf("not found: %w", marketdata.ErrNoData)

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	resp, err := c.http.Get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
