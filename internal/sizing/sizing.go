// Package sizing converts a risk budget into futures contract quantities.
package sizing

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/opencta/quant/internal/forex"
	"github.com/opencta/quant/internal/indicators"
	"github.com/opencta/quant/internal/instruments"
	"github.com/opencta/quant/internal/marketdata"
)

// trueRangeRiskBudget is the NAV fraction risked per ATR unit.
const trueRangeRiskBudget = 0.002

// Sizer derives contract quantities from the current NAV, the indicator
// store and instrument point values. The simulation loop updates the NAV
// each day before strategies size.
type Sizer struct {
	ind      *indicators.Indicators
	bars     *marketdata.Resolver
	fx       *forex.Converter
	universe *instruments.Universe

	mu  sync.Mutex
	nav float64
}

// New creates a sizer with no NAV yet; sizes are NaN until SetNav is called.
func New(ind *indicators.Indicators, bars *marketdata.Resolver, fx *forex.Converter, universe *instruments.Universe) *Sizer {
	return &Sizer{ind: ind, bars: bars, fx: fx, universe: universe, nav: math.NaN()}
}

// SetNav records the ledger NAV the next sizing call budgets against.
func (s *Sizer) SetNav(nav float64) {
	s.mu.Lock()
	s.nav = nav
	s.mu.Unlock()
}

func (s *Sizer) currentNav() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav
}

// fullPointValueUSD is the instrument's point value converted at day's FX
// rate.
func (s *Sizer) fullPointValueUSD(ctx context.Context, ins instruments.Instrument, day time.Time) float64 {
	return ins.PointValue * s.fx.ToUSD(ctx, ins.Currency, day)
}

// VolatilityRisk sizes a position so that its annualized volatility tracks
// the 20% reference: NAV x volatilityWeight x leverage / (close x point
// value in USD). Fractional contracts are returned; callers round.
func (s *Sizer) VolatilityRisk(ctx context.Context, stem string, day time.Time, leverage float64) float64 {
	ins, ok := s.universe.Get(stem)
	if !ok {
		return math.NaN()
	}
	weight := s.ind.VolatilityWeight(stem, indicators.MomentumWindow)
	bar, err := s.bars.Bardata(ctx, day, marketdata.ByStemRank(stem, 0))
	if err != nil {
		return math.NaN()
	}
	return s.currentNav() * weight * leverage / (bar.Close * s.fullPointValueUSD(ctx, ins, day))
}

// AverageTrueRangeRisk sizes a position so one ATR move costs 0.2% of NAV,
// scaled by leverage. Returns 0 while the history is too short for an ATR
// so an unwarmed instrument sizes to no position instead of a NaN order.
func (s *Sizer) AverageTrueRangeRisk(ctx context.Context, stem string, day time.Time, leverage float64) float64 {
	ins, ok := s.universe.Get(stem)
	if !ok {
		return math.NaN()
	}
	atr := s.ind.AverageTrueRange(stem, indicators.TrueRangeWindow)
	if math.IsNaN(atr) {
		return 0
	}
	return s.currentNav() * trueRangeRiskBudget * leverage / (atr * s.fullPointValueUSD(ctx, ins, day))
}
