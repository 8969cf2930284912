// Package backtest runs the day-by-day simulation loop and derives summary
// statistics from the resulting NAV series.
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/opencta/quant/internal/broker"
	"github.com/opencta/quant/internal/futures"
	"github.com/opencta/quant/internal/instruments"
	"github.com/opencta/quant/internal/marketdata"
	"github.com/opencta/quant/internal/report"
	"github.com/opencta/quant/internal/strategy"
	"github.com/opencta/quant/pkg/logger"
)

// minChainDepth is the number of eligible contracts every tracked stem must
// keep ahead of the simulation day.
const minChainDepth = 2

// Config bounds one run.
type Config struct {
	Stems     []string
	StartDate time.Time
	EndDate   time.Time
	Cash      float64
	Leverage  float64
	Type      instruments.Type
	Live      bool
	Plot      bool
	ChartDir  string
	Suffix    string
}

// Engine steps a calendar day at a time, delegating state mutation to the
// ledger and strategy, and accumulates the NAV series.
type Engine struct {
	cfg      Config
	ledger   broker.Ledger
	strat    strategy.Strategy
	chains   *futures.ChainResolver
	sink     report.Sink
	notifier report.Notifier
	log      *logger.Logger

	samples []NavSample
	lastNav float64
}

// NewEngine creates a simulation engine. Sink and notifier may be nil for
// runs that never call Save.
func NewEngine(cfg Config, ledger broker.Ledger, strat strategy.Strategy, chains *futures.ChainResolver, sink report.Sink, notifier report.Notifier, log *logger.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		ledger:   ledger,
		strat:    strat,
		chains:   chains,
		sink:     sink,
		notifier: notifier,
		log:      log,
		lastNav:  cfg.Cash,
	}
}

// Run executes the loop from StartDate to EndDate inclusive and returns the
// run statistics. Futures runs abort with a data gap error when any stem's
// chain thins below two eligible contracts.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	e.log.WithFields(map[string]interface{}{
		"stems":    e.cfg.Stems,
		"start":    e.cfg.StartDate.Format("2006-01-02"),
		"end":      e.cfg.EndDate.Format("2006-01-02"),
		"leverage": e.cfg.Leverage,
		"live":     e.cfg.Live,
	}).Info("Starting run")

	for day := e.cfg.StartDate; !day.After(e.cfg.EndDate); day = day.AddDate(0, 0, 1) {
		if e.cfg.Type == instruments.TypeFuture {
			if err := e.checkChainDepth(ctx, day); err != nil {
				return Stats{}, err
			}
		}
		if marketdata.IsWeekend(day) {
			continue
		}

		if err := e.ledger.AdvanceTo(ctx, day); err != nil {
			return Stats{}, fmt.Errorf("advance ledger to %s: %w", day.Format("2006-01-02"), err)
		}
		if err := e.strat.Next(ctx, day); err != nil {
			return Stats{}, fmt.Errorf("strategy next on %s: %w", day.Format("2006-01-02"), err)
		}
		if err := e.strat.NextIndicators(ctx, day); err != nil {
			return Stats{}, fmt.Errorf("strategy indicators on %s: %w", day.Format("2006-01-02"), err)
		}

		nav := e.ledger.NAV()
		if math.IsNaN(nav) {
			nav = e.lastNav
		} else {
			e.lastNav = nav
		}
		e.samples = append(e.samples, NavSample{Day: day, Nav: nav})
	}

	if !e.cfg.Live && e.cfg.Plot {
		path, err := RenderNavChart(e.samples, e.cfg.Stems, e.cfg.Leverage, e.cfg.Suffix, e.cfg.ChartDir)
		if err != nil {
			e.log.WithError(err).Warn("Failed to render NAV chart")
		} else {
			e.log.WithField("path", path).Info("NAV chart written")
		}
	}

	stats := ComputeStats(e.samples)
	e.log.WithFields(map[string]interface{}{
		"mean":   stats.Mean,
		"std":    stats.Std,
		"sharpe": stats.Sharpe,
		"kelly":  stats.Kelly,
		"nav":    e.lastNav,
	}).Info("Run completed")
	return stats, nil
}

func (e *Engine) checkChainDepth(ctx context.Context, day time.Time) error {
	for _, stem := range e.cfg.Stems {
		chain, err := e.chains.Chain(ctx, stem, day, 0)
		if err != nil {
			return err
		}
		if len(chain) < minChainDepth {
			return &futures.DataGapError{
				Stem: stem,
				Day:  day,
				Reason: fmt.Sprintf("only %d eligible contracts, need %d; extend the expiry data",
					len(chain), minChainDepth),
			}
		}
	}
	return nil
}

// Nav returns the accumulated NAV series.
func (e *Engine) Nav() []NavSample {
	out := make([]NavSample, len(e.samples))
	copy(out, e.samples)
	return out
}

// LastNav returns the most recent non-NaN NAV.
func (e *Engine) LastNav() float64 {
	return e.lastNav
}

// Day returns the last simulated day.
func (e *Engine) Day() time.Time {
	if len(e.samples) == 0 {
		return time.Time{}
	}
	return e.samples[len(e.samples)-1].Day
}

// Save persists the run's positions, returns and executions under spread and
// sends a trade alert when the final day saw a fill.
func (e *Engine) Save(ctx context.Context, spread string) error {
	if e.sink == nil {
		return fmt.Errorf("no result sink configured")
	}
	if err := e.sink.SavePositions(ctx, spread, e.Day(), e.ledger.Positions()); err != nil {
		return fmt.Errorf("save positions: %w", err)
	}

	logReturns := LogReturns(e.samples)
	returns := make([]report.NavPoint, 0, len(logReturns))
	for i, r := range logReturns {
		returns = append(returns, report.NavPoint{Day: e.samples[i].Day, Return: r})
	}
	if err := e.sink.SaveReturns(ctx, spread, returns); err != nil {
		return fmt.Errorf("save returns: %w", err)
	}

	if execLog, ok := e.ledger.(interface{ Executions() []broker.Execution }); ok {
		if err := e.sink.SaveExecutions(ctx, spread, execLog.Executions()); err != nil {
			return fmt.Errorf("save executions: %w", err)
		}
	}

	if e.notifier != nil && e.ledger.HasExecutionToday() {
		if err := e.notifier.NotifyTrade(ctx, spread, e.ledger.Positions()); err != nil {
			e.log.WithError(err).Warn("Failed to send trade alert")
		}
	}
	return nil
}

// AdjustPositions rescales the ledger cash so the NAV at the externally
// recorded cash date matches the recorded figure. Live reconciliation after
// a warm-up run.
func (e *Engine) AdjustPositions(ctx context.Context, spread string) error {
	if e.sink == nil {
		return fmt.Errorf("no result sink configured")
	}
	day, cash, err := e.sink.Cash(ctx, spread)
	if err != nil {
		return fmt.Errorf("adjust positions: %w", err)
	}
	nav := e.navNearest(day)
	if math.IsNaN(nav) || nav == 0 {
		return fmt.Errorf("adjust positions: no usable NAV near %s", day.Format("2006-01-02"))
	}
	e.ledger.ApplyCashAdjustment(cash / nav)
	e.lastNav = e.ledger.NAV()
	return nil
}

func (e *Engine) navNearest(day time.Time) float64 {
	if len(e.samples) == 0 {
		return math.NaN()
	}
	best := e.samples[0]
	for _, s := range e.samples[1:] {
		if absDuration(s.Day.Sub(day)) < absDuration(best.Day.Sub(day)) {
			best = s
		}
	}
	return best.Nav
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
