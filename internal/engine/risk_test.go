package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantfolio/internal/broker"
	"quantfolio/internal/config"
	"quantfolio/internal/domain"
)

func riskFixture(t *testing.T, cfg config.Risk) (*RiskManager, *Portfolio) {
	t.Helper()
	pf := NewPortfolio(10000)
	_, err := pf.Apply(domain.Fill{Strategy: "s1", Symbol: "AAA", Side: domain.SideBuy, Shares: 10, QuotedPrice: 100})
	require.NoError(t, err)
	return NewRiskManager(cfg, broker.NewCostModel(7.5, 0.005)), pf
}

func sig(strategy, symbol string, side domain.Side, shares int64, price float64) domain.Signal {
	return domain.Signal{Strategy: strategy, Symbol: symbol, Side: side, Shares: shares, Price: price}
}

func TestRiskPositionLimits(t *testing.T) {
	rm, pf := riskFixture(t, config.Risk{MaxPositionsPerStrategy: 1, MaxPositionsPerSymbol: 1, MaxPortfolioLeverage: 1})

	d := rm.Check(sig("s1", "BBB", domain.SideBuy, 1, 100), pf)
	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "s1 already holds 1 positions")

	d = rm.Check(sig("s2", "AAA", domain.SideBuy, 1, 100), pf)
	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "AAA already held by 1 strategies")

	// Adding to an existing holding does not open a new position.
	d = rm.Check(sig("s1", "AAA", domain.SideBuy, 1, 100), pf)
	assert.True(t, d.Accepted)
}

func TestRiskCash(t *testing.T) {
	limits := config.Risk{MaxPositionsPerStrategy: 5, MaxPositionsPerSymbol: 5, MaxPortfolioLeverage: 1}
	rm, pf := riskFixture(t, limits)

	d := rm.Check(sig("s2", "BBB", domain.SideBuy, 200, 100), pf)
	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "exceeds available cash")

	limits.AllowPartialFills = true
	rm, pf = riskFixture(t, limits)
	d = rm.Check(sig("s2", "BBB", domain.SideBuy, 200, 100), pf)
	require.True(t, d.Accepted)
	assert.Equal(t, int64(89), d.Signal.Shares, "9000 cash at 100.08 per share")
}

func TestRiskLeverage(t *testing.T) {
	limits := config.Risk{MaxPositionsPerStrategy: 5, MaxPositionsPerSymbol: 5, MaxPortfolioLeverage: 0.5}
	rm, pf := riskFixture(t, limits)

	d := rm.Check(sig("s2", "BBB", domain.SideBuy, 50, 100), pf)
	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "leverage")

	limits.AllowPartialFills = true
	rm, pf = riskFixture(t, limits)
	d = rm.Check(sig("s2", "BBB", domain.SideBuy, 50, 100), pf)
	require.True(t, d.Accepted)
	assert.Equal(t, int64(40), d.Signal.Shares)
}

func TestRiskExits(t *testing.T) {
	rm, pf := riskFixture(t, config.Risk{MaxPositionsPerStrategy: 1, MaxPositionsPerSymbol: 1, MaxPortfolioLeverage: 1})

	d := rm.Check(sig("s1", "AAA", domain.SideSell, 20, 100), pf)
	require.True(t, d.Accepted)
	assert.Equal(t, int64(10), d.Signal.Shares)

	d = rm.Check(sig("s2", "AAA", domain.SideSell, 1, 100), pf)
	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "holds no AAA")
}

func TestRiskRejectsMalformedSignals(t *testing.T) {
	rm, pf := riskFixture(t, config.Risk{MaxPositionsPerStrategy: 5, MaxPositionsPerSymbol: 5, MaxPortfolioLeverage: 1})
	assert.False(t, rm.Check(sig("s2", "BBB", domain.SideBuy, 0, 100), pf).Accepted)
	assert.False(t, rm.Check(sig("s2", "BBB", domain.SideBuy, 1, 0), pf).Accepted)
}
