// Package broker is the ledger the simulation loop delegates all state
// mutation to: cash, positions, fills and daily settlement.
package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/opencta/quant/internal/forex"
	"github.com/opencta/quant/internal/instruments"
	"github.com/opencta/quant/internal/margin"
	"github.com/opencta/quant/internal/marketdata"
	"github.com/opencta/quant/pkg/logger"
)

// ErrInsufficientMargin rejects an order whose post-trade margin requirement
// exceeds the current NAV.
var ErrInsufficientMargin = errors.New("insufficient margin for order")

// Execution records one fill.
type Execution struct {
	Day      time.Time
	Ticker   string
	Quantity float64
	Price    float64
}

// Ledger is the external state holder the simulation loop advances day by
// day. Strategies place orders against the concrete implementation they are
// wired with.
type Ledger interface {
	// AdvanceTo moves the ledger to day: settles open futures variation
	// against the new closes and re-marks equity positions.
	AdvanceTo(ctx context.Context, day time.Time) error
	// NAV returns the net asset value in USD, NaN when open positions
	// cannot be priced.
	NAV() float64
	// Positions returns quantity by ticker, zero-quantity entries included.
	Positions() map[string]float64
	// HasExecutionToday reports whether the current day saw a fill.
	HasExecutionToday() bool
	// ApplyCashAdjustment rescales cash by ratio, reconciling the ledger to
	// an externally recorded cash figure.
	ApplyCashAdjustment(ratio float64)
}

type position struct {
	stem      string
	kind      instruments.Type
	quantity  float64
	lastPrice float64 // native currency
}

// Sim is the in-memory ledger used for backtests and live paper tracking.
// Market orders fill at the day's close plus a per-instrument market-impact
// haircut; futures are settled by daily variation into cash, equities and
// coins are marked at close.
type Sim struct {
	bars     *marketdata.Resolver
	fx       *forex.Converter
	margins  *margin.Engine
	universe *instruments.Universe
	log      *logger.Logger

	noCheck bool

	mu           sync.Mutex
	day          time.Time
	cash         float64
	positions    map[string]*position
	executions   []Execution
	hasExecution bool
}

// NewSim creates a ledger with starting cash. With noCheck set, margin
// requirements are not enforced on orders.
func NewSim(cash float64, noCheck bool, bars *marketdata.Resolver, fx *forex.Converter, margins *margin.Engine, universe *instruments.Universe, log *logger.Logger) *Sim {
	return &Sim{
		bars:      bars,
		fx:        fx,
		margins:   margins,
		universe:  universe,
		log:       log,
		noCheck:   noCheck,
		cash:      cash,
		positions: make(map[string]*position),
	}
}

// Day returns the ledger's current day.
func (s *Sim) Day() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.day
}

// Cash returns the free cash balance in USD.
func (s *Sim) Cash() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cash
}

// AdvanceTo settles every open futures position from its last settlement
// price to day's close and re-marks equities and coins. Days without a bar
// leave the position at its previous mark.
func (s *Sim) AdvanceTo(ctx context.Context, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.day = day
	s.hasExecution = false

	for ticker, pos := range s.positions {
		if pos.quantity == 0 {
			continue
		}
		bar, err := s.bars.Bardata(ctx, day, marketdata.ByTicker(ticker))
		if err != nil || !bar.Tradeable() {
			continue
		}
		close := bar.Repaired().Close
		if pos.kind == instruments.TypeFuture {
			rate := s.fx.ToUSD(ctx, s.universe.Currency(pos.stem), day)
			pointValue := s.pointValue(pos.stem)
			s.cash += pos.quantity * (close - pos.lastPrice) * pointValue * rate
		}
		pos.lastPrice = close
	}
	return nil
}

func (s *Sim) pointValue(stem string) float64 {
	if ins, ok := s.universe.Get(stem); ok && ins.PointValue != 0 {
		return ins.PointValue
	}
	return 1
}

// MarketOrder fills quantity of the stem's ticker at the current day's close
// with the instrument's market-impact haircut applied against the trader.
// Futures fills cost only the impact; equity and coin fills move cash by the
// full notional.
func (s *Sim) MarketOrder(ctx context.Context, stem, ticker string, quantity float64) error {
	if quantity == 0 {
		return nil
	}
	s.mu.Lock()
	day := s.day
	s.mu.Unlock()

	bar, err := s.bars.Bardata(ctx, day, marketdata.ByTicker(ticker))
	if err != nil {
		return fmt.Errorf("order %s: %w", ticker, err)
	}
	if !bar.Tradeable() {
		return fmt.Errorf("order %s on %s: %w", ticker, day.Format("2006-01-02"), marketdata.ErrNoData)
	}
	close := bar.Repaired().Close

	ins, _ := s.universe.Get(stem)
	kind := ins.Type
	if kind == "" {
		kind = instruments.TypeFuture
	}
	impact := ins.MarketImpact
	if impact == 0 {
		impact = instruments.DefaultMarketImpact
	}

	// Impact works against the trader on both sides.
	fill := close * (1 + impact)
	if quantity < 0 {
		fill = close * (1 - impact)
	}

	if !s.noCheck {
		if err := s.checkMargin(ctx, stem, ticker, kind, quantity, day); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[ticker]
	if !ok {
		pos = &position{stem: stem, kind: kind, lastPrice: fill}
		s.positions[ticker] = pos
	}

	switch kind {
	case instruments.TypeFuture:
		// Opening a futures position has no notional cash flow; the impact
		// cost is realized immediately and settlement runs from the fill.
		rate := s.fx.ToUSD(ctx, s.universe.Currency(stem), day)
		pointValue := s.pointValue(stem)
		if pos.quantity != 0 {
			s.cash += pos.quantity * (fill - pos.lastPrice) * pointValue * rate
		}
		pos.lastPrice = fill
		pos.quantity += quantity
	default:
		currency := ins.Currency
		if kind == instruments.TypeStock {
			currency = forex.StockCurrency(ticker)
		}
		rate := s.fx.ToUSD(ctx, currency, day)
		s.cash -= quantity * fill * rate
		pos.quantity += quantity
		pos.lastPrice = close
	}

	s.executions = append(s.executions, Execution{Day: day, Ticker: ticker, Quantity: quantity, Price: fill})
	s.hasExecution = true
	if s.log != nil {
		s.log.WithFields(map[string]interface{}{
			"ticker":   ticker,
			"quantity": quantity,
			"price":    fill,
			"day":      day.Format("2006-01-02"),
		}).Info("Order filled")
	}
	return nil
}

func (s *Sim) checkMargin(ctx context.Context, stem, ticker string, kind instruments.Type, quantity float64, day time.Time) error {
	var perUnit float64
	switch kind {
	case instruments.TypeFuture:
		perUnit = s.margins.OvernightInitialFuture(ctx, stem, day)
	case instruments.TypeCoin:
		perUnit = s.margins.OvernightCoin(ctx, ticker, day)
	default:
		perUnit = s.margins.OvernightStock(ctx, ticker, day)
	}
	if math.IsNaN(perUnit) {
		return nil
	}

	s.mu.Lock()
	held := 0.0
	if pos, ok := s.positions[ticker]; ok {
		held = pos.quantity
	}
	s.mu.Unlock()

	required := math.Abs(held+quantity) * perUnit
	if nav := s.NAV(); !math.IsNaN(nav) && required > nav {
		return fmt.Errorf("%s needs %.2f USD margin against %.2f NAV: %w",
			ticker, required, nav, ErrInsufficientMargin)
	}
	return nil
}

// NAV returns cash plus the marked value of equity and coin positions.
// Settled futures carry no value beyond the cash already settled.
func (s *Sim) NAV() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	nav := s.cash
	for ticker, pos := range s.positions {
		if pos.quantity == 0 || pos.kind == instruments.TypeFuture {
			continue
		}
		currency := "USD"
		if pos.kind == instruments.TypeStock {
			currency = forex.StockCurrency(ticker)
		} else if ins, ok := s.universe.Get(pos.stem); ok && ins.Currency != "" {
			currency = ins.Currency
		}
		rate := s.fx.ToUSD(context.Background(), currency, s.day)
		nav += pos.quantity * pos.lastPrice * rate
	}
	return nav
}

// Positions returns quantity by ticker, including flattened positions.
func (s *Sim) Positions() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.positions))
	for ticker, pos := range s.positions {
		out[ticker] = pos.quantity
	}
	return out
}

// Position returns the held quantity for one ticker.
func (s *Sim) Position(ticker string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos, ok := s.positions[ticker]; ok {
		return pos.quantity
	}
	return 0
}

// HasExecutionToday reports whether the current day saw a fill.
func (s *Sim) HasExecutionToday() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasExecution
}

// Executions returns all fills in order.
func (s *Sim) Executions() []Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Execution, len(s.executions))
	copy(out, s.executions)
	return out
}

// ApplyCashAdjustment rescales cash by ratio.
func (s *Sim) ApplyCashAdjustment(ratio float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cash *= ratio
}

// Tickers returns the held tickers sorted, for deterministic reporting.
func (s *Sim) Tickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickers := make([]string, 0, len(s.positions))
	for ticker := range s.positions {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}
