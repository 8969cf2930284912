// Package jobs holds the scheduled jobs that keep the live pipeline fed:
// nightly data downloads and the post-close strategy run.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/opencta/quant/internal/data"
	"github.com/opencta/quant/internal/forex"
	"github.com/opencta/quant/internal/instruments"
	"github.com/opencta/quant/pkg/logger"
)

// DownloadJob refreshes expiry chains and daily bars for every instrument in
// the universe, plus the FX rate tickers the converter depends on.
type DownloadJob struct {
	downloader *data.Downloader
	store      *data.PgStore
	universe   *instruments.Universe
	cfg        data.DownloadConfig
	schedule   string
	logger     *logger.Logger
}

// NewDownloadJob creates a new DownloadJob.
func NewDownloadJob(downloader *data.Downloader, store *data.PgStore, universe *instruments.Universe, cfg data.DownloadConfig, schedule string, log *logger.Logger) *DownloadJob {
	return &DownloadJob{
		downloader: downloader,
		store:      store,
		universe:   universe,
		cfg:        cfg,
		schedule:   schedule,
		logger:     log,
	}
}

func (j *DownloadJob) Name() string { return "data-download" }

func (j *DownloadJob) Schedule() string { return j.schedule }

// Run fetches chains first so that newly listed contracts are picked up in
// the same pass as their bars.
func (j *DownloadJob) Run(ctx context.Context) error {
	var futureStems []string
	tickers := forex.RateTickers()
	for _, stem := range j.universe.Stems() {
		ins, _ := j.universe.Get(stem)
		if ins.Type == instruments.TypeFuture {
			futureStems = append(futureStems, stem)
			continue
		}
		tickers = append(tickers, stem)
	}

	if len(futureStems) > 0 {
		if err := j.downloader.FetchChains(ctx, futureStems); err != nil {
			return fmt.Errorf("fetch chains: %w", err)
		}
		for _, stem := range futureStems {
			chain, err := j.store.Chain(ctx, stem)
			if err != nil {
				return fmt.Errorf("load chain %s: %w", stem, err)
			}
			for _, contract := range chain {
				tickers = append(tickers, contract.Ticker)
			}
		}
	}

	endDate := time.Now().UTC().Truncate(24 * time.Hour)
	results := j.downloader.FetchBars(ctx, tickers, endDate, j.cfg)

	var failed int
	for _, res := range results {
		if res.Error != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tickers failed to download", failed, len(results))
	}
	j.logger.WithField("tickers", len(results)).Info("Download job finished")
	return nil
}
