package futures

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opencta/quant/internal/instruments"
)

// ChainSource supplies the full vendor chain for a stem, ascending by last
// trade date.
type ChainSource interface {
	Chain(ctx context.Context, stem string) ([]Contract, error)
}

// ChainResolver filters vendor chains down to the contracts that are still
// eligible on a given day and ranks them (0 = front, 1 = next, ...).
//
// Full chains are cached per stem for the life of the process: contract
// definitions never change retroactively.
type ChainResolver struct {
	source   ChainSource
	universe *instruments.Universe

	mu    sync.Mutex
	cache map[string][]Contract
}

// NewChainResolver creates a chain resolver on top of a vendor chain source.
func NewChainResolver(source ChainSource, universe *instruments.Universe) *ChainResolver {
	return &ChainResolver{
		source:   source,
		universe: universe,
		cache:    make(map[string][]Contract),
	}
}

func (r *ChainResolver) fullChain(ctx context.Context, stem string) ([]Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if chain, ok := r.cache[stem]; ok {
		return chain, nil
	}

	chain, err := r.source.Chain(ctx, stem)
	if err != nil {
		return nil, fmt.Errorf("fetch chain for %s: %w", stem, err)
	}
	r.cache[stem] = chain
	return chain, nil
}

// Chain returns the stem's contracts with LastTradeDate >= asOf and the
// trading-enabled flag set, preserving expiry order. A *DataGapError is
// returned when the chain does not extend at least minDaysToExpiry beyond
// asOf: that means the expiry data itself needs extending, not that a fetch
// transiently failed.
func (r *ChainResolver) Chain(ctx context.Context, stem string, asOf time.Time, minDaysToExpiry int) ([]Contract, error) {
	full, err := r.fullChain(ctx, stem)
	if err != nil {
		return nil, err
	}
	if len(full) == 0 {
		return nil, &DataGapError{Stem: stem, Day: asOf, Reason: "vendor chain is empty"}
	}

	last := full[len(full)-1].LastTradeDate
	if last.Sub(asOf) < time.Duration(minDaysToExpiry)*24*time.Hour {
		return nil, &DataGapError{
			Stem: stem,
			Day:  asOf,
			Reason: fmt.Sprintf("chain ends %s, need %d days of runway; extend the expiry data",
				last.Format("2006-01-02"), minDaysToExpiry),
		}
	}

	eligible := make([]Contract, 0, len(full))
	for _, c := range full {
		if c.TradingEnabled && !c.LastTradeDate.Before(asOf) {
			eligible = append(eligible, c)
		}
	}
	return eligible, nil
}

// Contract returns the rank'th eligible contract as of day (rank 0 = front).
func (r *ChainResolver) Contract(ctx context.Context, stem string, day time.Time, rank int) (Contract, error) {
	chain, err := r.Chain(ctx, stem, day, 0)
	if err != nil {
		return Contract{}, err
	}
	if rank >= len(chain) {
		return Contract{}, &DataGapError{
			Stem: stem,
			Day:  day,
			Reason: fmt.Sprintf("only %d eligible contracts, need rank %d; extend the expiry data",
				len(chain), rank),
		}
	}
	return chain[rank], nil
}

// referenceDay applies the per-stem roll offset to day. The offset is
// negative, so the reference day lies in the future: contracts that expire
// inside the roll window are already skipped when ranking.
func (r *ChainResolver) referenceDay(stem string, day time.Time) time.Time {
	return day.Add(-r.universe.RollOffset(stem))
}

// FrontContract returns the front contract as of the roll-offset adjusted
// reference day.
func (r *ChainResolver) FrontContract(ctx context.Context, stem string, day time.Time) (Contract, error) {
	return r.Contract(ctx, stem, r.referenceDay(stem, day), 0)
}

// NextContract returns the contract one rank behind the front as of the
// roll-offset adjusted reference day.
func (r *ChainResolver) NextContract(ctx context.Context, stem string, day time.Time) (Contract, error) {
	return r.Contract(ctx, stem, r.referenceDay(stem, day), 1)
}
