package strategy

import (
	"quantfolio/internal/broker"
	"quantfolio/internal/domain"
)

// Sizer converts a capital fraction into a cost-aware share count.
type Sizer struct {
	Capital  float64 // capital allocated to the strategy
	Fraction float64 // fraction of Capital committed per entry
	Costs    broker.CostModel
}

// NewSizer returns a Sizer for a strategy holding allocation of
// initialCapital and committing fraction of it per entry.
func NewSizer(initialCapital, allocation, fraction float64, costs broker.CostModel) Sizer {
	return Sizer{
		Capital:  initialCapital * allocation,
		Fraction: fraction,
		Costs:    costs,
	}
}

// Target returns the dollar value committed to a single entry.
func (s Sizer) Target() float64 {
	return s.Capital * s.Fraction
}

// Shares returns the number of shares to buy at price.
func (s Sizer) Shares(price float64) int64 {
	return s.Costs.SizeForValue(price, domain.SideBuy, s.Target())
}
