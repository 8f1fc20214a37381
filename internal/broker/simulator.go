package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"quantfolio/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker implements the Broker interface for backtesting. Every
// order fills immediately at the cost-adjusted quoted price and is appended
// to an in-memory ledger that is never rewritten.
type SimulatorBroker struct {
	costs CostModel
	clock func() time.Time
	book  BookFunc

	mu     sync.Mutex
	ledger []domain.Fill
}

// NewSimulatorBroker creates a SimulatorBroker that prices fills with costs.
func NewSimulatorBroker(costs CostModel) *SimulatorBroker {
	return &SimulatorBroker{
		costs: costs,
		clock: time.Now,
	}
}

// SetClock replaces the source of fill timestamps. The backtester points it
// at the simulated period.
func (b *SimulatorBroker) SetClock(clock func() time.Time) {
	b.clock = clock
}

// BookFunc books a priced fill into the caller's state before it reaches
// the ledger. It may annotate the fill; an error cancels the execution.
type BookFunc func(fill *domain.Fill) error

// SetBooker installs fn as the booking step of Execute. A nil fn records
// every priced fill.
func (b *SimulatorBroker) SetBooker(fn BookFunc) {
	b.book = fn
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// Estimate prices the order without recording it.
func (b *SimulatorBroker) Estimate(order Order) domain.Fill {
	e := b.costs.Fill(order.QuotedPrice, order.Side, order.Shares)
	return domain.Fill{
		Strategy:       order.Strategy,
		Symbol:         order.Symbol,
		Side:           order.Side,
		Shares:         order.Shares,
		QuotedPrice:    order.QuotedPrice,
		ExecutionPrice: e.Price,
		SlippageCost:   e.Slippage,
		CommissionCost: e.Commission,
		TotalCost:      e.Total,
		Reason:         order.Reason,
		Synthetic:      order.Synthetic,
		StopLoss:       order.StopLoss,
	}
}

// Execute fills the order immediately, books it, and records it in the
// ledger. A fill the booker refuses never reaches the ledger.
func (b *SimulatorBroker) Execute(ctx context.Context, order Order) (domain.Fill, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fill{}, err
	}
	if order.Shares <= 0 {
		return domain.Fill{}, fmt.Errorf("order for %s has non-positive shares %d", order.Symbol, order.Shares)
	}
	if order.QuotedPrice <= 0 {
		return domain.Fill{}, fmt.Errorf("order for %s has non-positive price %v", order.Symbol, order.QuotedPrice)
	}

	fill := b.Estimate(order)
	fill.ID = uuid.NewString()
	fill.Timestamp = b.clock()
	if b.book != nil {
		if err := b.book(&fill); err != nil {
			return domain.Fill{}, err
		}
	}

	b.mu.Lock()
	b.ledger = append(b.ledger, fill)
	b.mu.Unlock()
	return fill, nil
}

// Ledger returns a copy of every fill executed so far, in order.
func (b *SimulatorBroker) Ledger() []domain.Fill {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Fill, len(b.ledger))
	copy(out, b.ledger)
	return out
}
