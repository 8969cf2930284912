// Package buyhold holds one long front contract per stem, rolling forward
// when the roll decision fires.
package buyhold

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/opencta/quant/internal/marketdata"
	"github.com/opencta/quant/internal/strategy"
)

// BuyHold is the long-only carry strategy: enter once per stem at an
// ATR-risk size, then maintain the position across contract rolls.
type BuyHold struct {
	strategy.Base

	current map[string]string // stem -> held ticker
}

// New creates the strategy.
func New(base strategy.Base) *BuyHold {
	return &BuyHold{Base: base, current: make(map[string]string)}
}

// Next enters missing positions and rolls existing ones.
func (s *BuyHold) Next(ctx context.Context, day time.Time) error {
	s.SyncNav()
	for _, stem := range s.Stems {
		if !s.Bars.IsTradingDay(ctx, day, marketdata.ByStemRank(stem, 0)) {
			continue
		}
		if err := s.step(ctx, stem, day); err != nil {
			return fmt.Errorf("buyhold %s: %w", stem, err)
		}
	}
	return nil
}

func (s *BuyHold) step(ctx context.Context, stem string, day time.Time) error {
	held, ok := s.current[stem]
	if !ok {
		return s.enter(ctx, stem, day)
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
	if next.Ticker == held {
		return nil
	}
	if !s.Bars.IsTradingDay(ctx, day, marketdata.ByTicker(next.Ticker)) {
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

func (s *BuyHold) enter(ctx context.Context, stem string, day time.Time) error {
	size := s.Sizer.AverageTrueRangeRisk(ctx, stem, day, s.Leverage)
	quantity := math.Floor(size)
	if quantity < 1 || math.IsNaN(quantity) {
		return nil
	}
	front, err := s.Chains.Contract(ctx, stem, day, 0)
	if err != nil {
		return err
	}
	if err := s.Ledger.MarketOrder(ctx, stem, front.Ticker, quantity); err != nil {
		return err
	}
	s.current[stem] = front.Ticker
	return nil
}

// NextIndicators feeds the day's front bars into the indicator store.
func (s *BuyHold) NextIndicators(ctx context.Context, day time.Time) error {
	return s.FeedBars(ctx, day)
}
