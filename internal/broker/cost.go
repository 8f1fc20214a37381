package broker

import (
	"math"

	"quantfolio/internal/domain"
)

// CostModel converts quoted prices into cost-adjusted executions. It is a
// plain value: construct it once from configuration and pass it to every
// component that needs cost conversion.
type CostModel struct {
	SlippageBps        float64
	CommissionPerShare float64
}

// NewCostModel returns a CostModel with the given rates.
func NewCostModel(slippageBps, commissionPerShare float64) CostModel {
	return CostModel{
		SlippageBps:        slippageBps,
		CommissionPerShare: commissionPerShare,
	}
}

// Execution is the priced outcome of trading shares at a quoted price.
type Execution struct {
	Price      float64
	Slippage   float64
	Commission float64
	Total      float64 // Slippage + Commission
}

// Fill prices a trade. Slippage moves the execution price against the
// trader: up for buys, down for sells.
func (m CostModel) Fill(quoted float64, side domain.Side, shares int64) Execution {
	rate := m.SlippageBps / 10000
	price := quoted * (1 + rate)
	if side == domain.SideSell {
		price = quoted * (1 - rate)
	}
	n := float64(shares)
	slippage := math.Abs(price-quoted) * n
	commission := n * m.CommissionPerShare
	return Execution{
		Price:      price,
		Slippage:   slippage,
		Commission: commission,
		Total:      slippage + commission,
	}
}

// CashDelta returns the change in cash caused by the execution: negative
// for buys, positive for sells.
func (m CostModel) CashDelta(quoted float64, side domain.Side, shares int64) float64 {
	e := m.Fill(quoted, side, shares)
	n := float64(shares)
	if side == domain.SideBuy {
		return -(e.Price*n + e.Commission)
	}
	return e.Price*n - e.Commission
}

// SizeForValue returns the largest share count whose cost-inclusive notional
// (quoted value plus slippage plus commission) fits within target. The
// result is never negative.
func (m CostModel) SizeForValue(quoted float64, _ domain.Side, target float64) int64 {
	if quoted <= 0 || target <= 0 {
		return 0
	}
	perShare := quoted*(1+m.SlippageBps/10000) + m.CommissionPerShare
	if perShare <= 0 {
		return 0
	}
	shares := int64(math.Floor(target / perShare))
	if shares < 0 {
		return 0
	}
	return shares
}
