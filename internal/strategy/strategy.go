// Package strategy defines the hooks the simulation loop drives and the
// shared wiring concrete strategies build on.
package strategy

import (
	"context"
	"time"

	"github.com/opencta/quant/internal/broker"
	"github.com/opencta/quant/internal/futures"
	"github.com/opencta/quant/internal/indicators"
	"github.com/opencta/quant/internal/instruments"
	"github.com/opencta/quant/internal/marketdata"
	"github.com/opencta/quant/internal/sizing"
	"github.com/opencta/quant/pkg/logger"
)

// Strategy is what the simulation loop calls once per trading day: Next
// places orders, NextIndicators feeds the day's bars into the indicator
// store after orders are done.
type Strategy interface {
	Next(ctx context.Context, day time.Time) error
	NextIndicators(ctx context.Context, day time.Time) error
}

// Base carries the components every concrete strategy needs. Strategies
// embed it and implement the two hooks.
type Base struct {
	Ledger     *broker.Sim
	Bars       *marketdata.Resolver
	Chains     *futures.ChainResolver
	Indicators *indicators.Indicators
	Sizer      *sizing.Sizer
	Universe   *instruments.Universe
	Log        *logger.Logger

	Stems    []string
	Leverage float64
}

// FeedBars appends each stem's front-contract bar for day to the indicator
// store, skipping non-trading days. The standard NextIndicators body.
func (b *Base) FeedBars(ctx context.Context, day time.Time) error {
	for _, stem := range b.Stems {
		bar, err := b.Bars.Bardata(ctx, day, marketdata.ByStemRank(stem, 0))
		if err != nil || !bar.Tradeable() {
			continue
		}
		b.Indicators.SetBar(ctx, stem, bar.Repaired())
	}
	return nil
}

// SyncNav pushes the ledger NAV into the sizer. Call at the top of Next.
func (b *Base) SyncNav() {
	b.Sizer.SetNav(b.Ledger.NAV())
}
