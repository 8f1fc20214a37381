package strategy

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantfolio/internal/broker"
	"quantfolio/internal/domain"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	Base
}

func newStub(name string) *stubStrategy {
	return &stubStrategy{Base: NewBase(name, Sizer{})}
}

func (s *stubStrategy) GenerateSignals(_ context.Context, _ domain.Slice) ([]domain.Signal, error) {
	return nil, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(newStub("test-strategy"))

	got, ok := r.Get("test-strategy")
	require.True(t, ok, "Get returned false for registered strategy")
	assert.Equal(t, "test-strategy", got.Name())
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	assert.False(t, ok)
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(newStub("beta"))
	r.Register(newStub("alpha"))

	assert.Equal(t, []string{"alpha", "beta"}, r.List())
	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name())
	assert.Equal(t, 2, r.Len())
}

func fill(side domain.Side, symbol string, shares int64, price float64) domain.Fill {
	return domain.Fill{Symbol: symbol, Side: side, Shares: shares, QuotedPrice: price, TotalCost: 1}
}

func TestBookOpenAddReduceClose(t *testing.T) {
	b := NewBook("mean_reversion")

	require.NoError(t, b.Apply(fill(domain.SideBuy, "AAPL", 10, 100)))
	require.NoError(t, b.Apply(fill(domain.SideBuy, "AAPL", 30, 120)))

	p, ok := b.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, int64(40), p.Shares)
	assert.InDelta(t, 115.0, p.AvgCost, 1e-9)
	assert.InDelta(t, 2.0, p.EntryCosts, 1e-9)
	assert.Equal(t, "mean_reversion", p.Strategy)

	require.NoError(t, b.Apply(fill(domain.SideSell, "AAPL", 20, 130)))
	p, _ = b.Position("AAPL")
	assert.Equal(t, int64(20), p.Shares)
	assert.InDelta(t, 1.0, p.EntryCosts, 1e-9)

	require.NoError(t, b.Apply(fill(domain.SideSell, "AAPL", 20, 130)))
	assert.False(t, b.Holds("AAPL"))
	assert.Zero(t, b.Len())
}

func TestBookRejectsOversell(t *testing.T) {
	b := NewBook("s")
	assert.Error(t, b.Apply(fill(domain.SideSell, "AAPL", 1, 100)))

	require.NoError(t, b.Apply(fill(domain.SideBuy, "AAPL", 5, 100)))
	assert.Error(t, b.Apply(fill(domain.SideSell, "AAPL", 6, 100)))

	p, _ := b.Position("AAPL")
	assert.Equal(t, int64(5), p.Shares, "failed sell must not modify the book")
}

func TestBookPositionUniqueness(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := NewBook("s")
	symbols := []string{"AAPL", "MSFT", "XOM"}

	for i := 0; i < 500; i++ {
		sym := symbols[rng.Intn(len(symbols))]
		shares := int64(rng.Intn(20) + 1)
		if rng.Intn(2) == 0 {
			_ = b.Apply(fill(domain.SideBuy, sym, shares, 100))
		} else {
			_ = b.Apply(fill(domain.SideSell, sym, shares, 100))
		}

		seen := map[string]bool{}
		for _, p := range b.Positions() {
			assert.False(t, seen[p.Symbol], "duplicate position for %s", p.Symbol)
			seen[p.Symbol] = true
			assert.Positive(t, p.Shares)
		}
	}
}

func TestBookAdvanceDay(t *testing.T) {
	b := NewBook("s")
	require.NoError(t, b.Apply(domain.Fill{Symbol: "AAPL", Side: domain.SideBuy, Shares: 1, QuotedPrice: 10, Timestamp: time.Now()}))
	b.AdvanceDay()
	b.AdvanceDay()
	p, _ := b.Position("AAPL")
	assert.Equal(t, 2, p.DaysHeld)
}

func TestSizer(t *testing.T) {
	s := NewSizer(100000, 0.5, 0.2, broker.NewCostModel(7.5, 0.005))
	assert.InDelta(t, 10000.0, s.Target(), 1e-9)
	assert.Equal(t, int64(99), s.Shares(100))
	assert.Zero(t, s.Shares(0))
}

func TestSymbolsSorted(t *testing.T) {
	slice := domain.Slice{History: map[string][]domain.Bar{"MSFT": nil, "AAPL": nil, "XOM": nil}}
	assert.Equal(t, []string{"AAPL", "MSFT", "XOM"}, Symbols(slice))
}
