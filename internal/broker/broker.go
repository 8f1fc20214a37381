// Package broker turns accepted signals into fills. The SimulatorBroker
// prices every order through a CostModel so backtests see realistic
// slippage and commission.
package broker

import (
	"context"

	"quantfolio/internal/domain"
)

// Order is an accepted instruction to trade at a quoted reference price.
type Order struct {
	Strategy    string
	Symbol      string
	Side        domain.Side
	Shares      int64
	QuotedPrice float64
	Reason      string
	Synthetic   bool
	StopLoss    bool
}

// Broker executes orders and reports the resulting fills.
type Broker interface {
	// Name returns the broker identifier (e.g. "simulator").
	Name() string

	// Execute fills the order and returns the realised execution.
	Execute(ctx context.Context, order Order) (domain.Fill, error)

	// Estimate returns the fill the order would produce without recording it.
	Estimate(order Order) domain.Fill
}
