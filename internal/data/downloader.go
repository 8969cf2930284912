package data

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opencta/quant/internal/instruments"
	"github.com/opencta/quant/pkg/logger"
)

// DownloadConfig bounds a bulk download.
type DownloadConfig struct {
	Workers       int // concurrent tickers
	MaxWindowDays int // largest [start, end] window per vendor request
}

// DownloadResult is the outcome for one ticker.
type DownloadResult struct {
	Ticker   string
	BarCount int
	Error    error
}

// Downloader fills the local store from the vendor: contract chains per
// stem, then daily bars per ticker in bounded windows. The vendor client's
// rate limit paces every request.
type Downloader struct {
	client   *Client
	store    *PgStore
	universe *instruments.Universe
	logger   *logger.Logger
}

// NewDownloader creates a downloader.
func NewDownloader(client *Client, store *PgStore, universe *instruments.Universe, log *logger.Logger) *Downloader {
	return &Downloader{client: client, store: store, universe: universe, logger: log}
}

// FetchChains refreshes the stored expiry chain for every stem.
func (d *Downloader) FetchChains(ctx context.Context, stems []string) error {
	for _, stem := range stems {
		chain, err := d.client.Chain(ctx, stem)
		if err != nil {
			return fmt.Errorf("fetch chain for %s: %w", stem, err)
		}
		if err := d.store.SaveChain(ctx, stem, chain); err != nil {
			return fmt.Errorf("save chain for %s: %w", stem, err)
		}
		d.logger.WithFields(map[string]interface{}{
			"stem":      stem,
			"contracts": len(chain),
		}).Info("Chain refreshed")
	}
	return nil
}

// FetchBars downloads daily bars for all tickers up to endDate with a worker
// pool, resuming each ticker from its last stored day.
func (d *Downloader) FetchBars(ctx context.Context, tickers []string, endDate time.Time, cfg DownloadConfig) []DownloadResult {
	d.logger.WithFields(map[string]interface{}{
		"tickers": len(tickers),
		"end":     endDate.Format("2006-01-02"),
		"workers": cfg.Workers,
	}).Info("Starting bar download")

	tickerCh := make(chan string, len(tickers))
	resultCh := make(chan DownloadResult, len(tickers))

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.barWorker(ctx, tickerCh, resultCh, endDate, cfg.MaxWindowDays)
		}()
	}

	for _, ticker := range tickers {
		tickerCh <- ticker
	}
	close(tickerCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]DownloadResult, 0, len(tickers))
	failed := 0
	for result := range resultCh {
		results = append(results, result)
		if result.Error != nil {
			failed++
		}
	}

	d.logger.WithFields(map[string]interface{}{
		"total":  len(results),
		"failed": failed,
	}).Info("Bar download completed")
	return results
}

func (d *Downloader) barWorker(ctx context.Context, tickerCh <-chan string, resultCh chan<- DownloadResult, endDate time.Time, maxWindowDays int) {
	for ticker := range tickerCh {
		select {
		case <-ctx.Done():
			resultCh <- DownloadResult{Ticker: ticker, Error: ctx.Err()}
			return
		default:
		}
		count, err := d.fetchTicker(ctx, ticker, endDate, maxWindowDays)
		if err != nil {
			d.logger.WithError(err).WithField("ticker", ticker).Error("Failed to download bars")
		}
		resultCh <- DownloadResult{Ticker: ticker, BarCount: count, Error: err}
	}
}

// fetchTicker pulls the ticker's missing history in maxWindowDays chunks.
func (d *Downloader) fetchTicker(ctx context.Context, ticker string, endDate time.Time, maxWindowDays int) (int, error) {
	start := d.startDay(ctx, ticker)
	total := 0
	for !start.After(endDate) {
		end := start.AddDate(0, 0, maxWindowDays-1)
		if end.After(endDate) {
			end = endDate
		}
		bars, err := d.client.DailyBars(ctx, ticker, start, end)
		if err != nil {
			return total, err
		}
		if err := d.store.SaveBars(ctx, bars); err != nil {
			return total, err
		}
		total += len(bars)
		start = end.AddDate(0, 0, 1)
	}
	return total, nil
}

func (d *Downloader) startDay(ctx context.Context, ticker string) time.Time {
	if last, ok, err := d.store.LastBarDay(ctx, ticker); err == nil && ok {
		return last.AddDate(0, 0, 1)
	}
	if ins, found := d.universe.Get(ticker); found {
		return ins.StartDay()
	}
	return instruments.DefaultStartDate
}
