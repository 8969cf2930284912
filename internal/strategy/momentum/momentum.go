// Package momentum rebalances monthly into the sign of each stem's
// volatility-weighted momentum.
package momentum

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/opencta/quant/internal/indicators"
	"github.com/opencta/quant/internal/marketdata"
	"github.com/opencta/quant/internal/strategy"
)

// Momentum sizes a long or short front-contract position per stem once a
// month, scaled by inverse volatility, and rolls between rebalances.
type Momentum struct {
	strategy.Base

	current map[string]string // stem -> held ticker
}

// New creates the strategy.
func New(base strategy.Base) *Momentum {
	return &Momentum{Base: base, current: make(map[string]string)}
}

// Next rolls held contracts and rebalances on the first trading day of each
// month per stem.
func (s *Momentum) Next(ctx context.Context, day time.Time) error {
	s.SyncNav()
	for _, stem := range s.Stems {
		if !s.Bars.IsTradingDay(ctx, day, marketdata.ByStemRank(stem, 0)) {
			continue
		}
		if err := s.roll(ctx, stem, day); err != nil {
			return fmt.Errorf("momentum roll %s: %w", stem, err)
		}
		if !s.Indicators.ShouldTradeToday(day, stem, indicators.Monthly) {
			continue
		}
		if err := s.rebalance(ctx, stem, day); err != nil {
			return fmt.Errorf("momentum rebalance %s: %w", stem, err)
		}
	}
	return nil
}

func (s *Momentum) roll(ctx context.Context, stem string, day time.Time) error {
	held, ok := s.current[stem]
	if !ok {
		return nil
	}
	roll, err := s.Bars.ShouldRollToday(ctx, stem, day)
	if err != nil {
		return err
	}
	if !roll {
		return nil
	}
	next, err := s.Chains.Contract(ctx, stem, day, 1)
	if err != nil {
		return err
	}
	if next.Ticker == held || !s.Bars.IsTradingDay(ctx, day, marketdata.ByTicker(next.Ticker)) {
		return nil
	}
	quantity := s.Ledger.Position(held)
	if quantity != 0 {
		if err := s.Ledger.MarketOrder(ctx, stem, held, -quantity); err != nil {
			return err
		}
		if err := s.Ledger.MarketOrder(ctx, stem, next.Ticker, quantity); err != nil {
			return err
		}
	}
	s.current[stem] = next.Ticker
	return nil
}

func (s *Momentum) rebalance(ctx context.Context, stem string, day time.Time) error {
	signal := s.Indicators.Momentum(stem, indicators.MomentumWindow)
	if math.IsNaN(signal) {
		return nil
	}
	size := s.Sizer.VolatilityRisk(ctx, stem, day, s.Leverage)
	if math.IsNaN(size) {
		return nil
	}
	target := math.Floor(math.Abs(size))
	if signal < 0 {
		target = -target
	}

	ticker, ok := s.current[stem]
	if !ok {
		front, err := s.Chains.Contract(ctx, stem, day, 0)
		if err != nil {
			return err
		}
		ticker = front.Ticker
	}

	delta := target - s.Ledger.Position(ticker)
	if delta == 0 {
		return nil
	}
	if err := s.Ledger.MarketOrder(ctx, stem, ticker, delta); err != nil {
		return err
	}
	s.current[stem] = ticker
	return nil
}

// NextIndicators feeds the day's front bars into the indicator store.
func (s *Momentum) NextIndicators(ctx context.Context, day time.Time) error {
	return s.FeedBars(ctx, day)
}
