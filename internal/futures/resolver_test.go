package futures

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencta/quant/internal/instruments"
)

type fakeChainSource struct {
	chains map[string][]Contract
	calls  int
}

func (f *fakeChainSource) Chain(_ context.Context, stem string) ([]Contract, error) {
	f.calls++
	chain, ok := f.chains[stem]
	if !ok {
		return nil, ErrNoSuchStem
	}
	return chain, nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func testUniverse(t *testing.T) *instruments.Universe {
	t.Helper()
	u, err := instruments.Parse([]byte(`
instruments:
  - stem: ES
    name: E-mini S&P 500
    type: future
    point_value: 50
    overnight_initial: 12000
    overnight_maintenance: 11000
`))
	require.NoError(t, err)
	return u
}

func esChain() []Contract {
	return []Contract{
		{Stem: "ES", Ticker: "ESH24", LastTradeDate: day("2024-03-15"), TradingEnabled: true},
		{Stem: "ES", Ticker: "ESM24", LastTradeDate: day("2024-06-21"), TradingEnabled: true},
		{Stem: "ES", Ticker: "ESU24", LastTradeDate: day("2024-09-20"), TradingEnabled: true},
		{Stem: "ES", Ticker: "ESZ24", LastTradeDate: day("2024-12-20"), TradingEnabled: true},
	}
}

func TestChainFiltersExpired(t *testing.T) {
	src := &fakeChainSource{chains: map[string][]Contract{"ES": esChain()}}
	r := NewChainResolver(src, testUniverse(t))

	chain, err := r.Chain(context.Background(), "ES", day("2024-04-01"), 0)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "ESM24", chain[0].Ticker)
}

func TestChainSkipsDisabledContracts(t *testing.T) {
	contracts := esChain()
	contracts[1].TradingEnabled = false
	src := &fakeChainSource{chains: map[string][]Contract{"ES": contracts}}
	r := NewChainResolver(src, testUniverse(t))

	chain, err := r.Chain(context.Background(), "ES", day("2024-04-01"), 0)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "ESU24", chain[0].Ticker)
}

func TestChainDataGapOnShortRunway(t *testing.T) {
	src := &fakeChainSource{chains: map[string][]Contract{"ES": esChain()}}
	r := NewChainResolver(src, testUniverse(t))

	_, err := r.Chain(context.Background(), "ES", day("2024-12-01"), 90)
	require.Error(t, err)
	var gap *DataGapError
	require.True(t, errors.As(err, &gap))
	assert.Equal(t, "ES", gap.Stem)
	assert.Contains(t, err.Error(), "ES")
}

func TestChainCachesVendorFetch(t *testing.T) {
	src := &fakeChainSource{chains: map[string][]Contract{"ES": esChain()}}
	r := NewChainResolver(src, testUniverse(t))

	for i := 0; i < 3; i++ {
		_, err := r.Chain(context.Background(), "ES", day("2024-04-01"), 0)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, src.calls)
}

func TestFrontContractHonorsRollOffset(t *testing.T) {
	src := &fakeChainSource{chains: map[string][]Contract{"ES": esChain()}}
	r := NewChainResolver(src, testUniverse(t))

	// Default roll offset is -31 days, so on 2024-02-20 the reference day is
	// 2024-03-22 and ESH24 (LTD 2024-03-15) is already skipped.
	front, err := r.FrontContract(context.Background(), "ES", day("2024-02-20"))
	require.NoError(t, err)
	assert.Equal(t, "ESM24", front.Ticker)

	next, err := r.NextContract(context.Background(), "ES", day("2024-02-20"))
	require.NoError(t, err)
	assert.Equal(t, "ESU24", next.Ticker)
}

func TestFrontContractNeverInsideRollWindow(t *testing.T) {
	src := &fakeChainSource{chains: map[string][]Contract{"ES": esChain()}}
	r := NewChainResolver(src, testUniverse(t))
	u := testUniverse(t)

	for d := day("2024-01-02"); d.Before(day("2024-11-01")); d = d.AddDate(0, 0, 7) {
		front, err := r.FrontContract(context.Background(), "ES", d)
		require.NoError(t, err)
		ref := d.Add(-u.RollOffset("ES"))
		assert.False(t, front.LastTradeDate.Before(ref),
			"front %s expires before reference day %s", front.Ticker, ref.Format("2006-01-02"))
	}
}

func TestContractRankOutOfRange(t *testing.T) {
	src := &fakeChainSource{chains: map[string][]Contract{"ES": esChain()}}
	r := NewChainResolver(src, testUniverse(t))

	_, err := r.Contract(context.Background(), "ES", day("2024-10-01"), 5)
	require.Error(t, err)
	assert.True(t, IsDataGap(err))
}

func TestUnknownStem(t *testing.T) {
	src := &fakeChainSource{chains: map[string][]Contract{}}
	r := NewChainResolver(src, testUniverse(t))

	_, err := r.Chain(context.Background(), "ZZ", day("2024-04-01"), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSuchStem)
}
