// Package strategy defines the Strategy interface for signal generators and
// provides the shared position book, sizing helper, and a Registry for
// managing multiple strategy implementations.
package strategy

import (
	"context"
	"sort"

	"quantfolio/internal/domain"
)

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// GenerateSignals inspects the period's price slice and the strategy's
	// own book and returns zero or more proposed actions. Symbols without
	// enough history are skipped, not reported as errors.
	GenerateSignals(ctx context.Context, slice domain.Slice) ([]domain.Signal, error)

	// AdvanceDay increments the hold counter of every open position.
	AdvanceDay()

	// OnFill updates the strategy's book after the backtester confirms a
	// fill. Rejected signals never reach this method.
	OnFill(fill domain.Fill) error

	// Book exposes the strategy's positions for read-only inspection.
	Book() *Book
}

// Base carries the behaviour every built-in strategy shares: its name, its
// book, and its sizing rule. Variants embed it.
type Base struct {
	name  string
	book  *Book
	sizer Sizer
}

// NewBase creates a Base with an empty book.
func NewBase(name string, sizer Sizer) Base {
	return Base{
		name:  name,
		book:  NewBook(name),
		sizer: sizer,
	}
}

// Name returns the strategy identifier.
func (b *Base) Name() string { return b.name }

// Book returns the strategy's position book.
func (b *Base) Book() *Book { return b.book }

// Sizer returns the strategy's sizing rule.
func (b *Base) Sizer() Sizer { return b.sizer }

// AdvanceDay increments hold counters on the book.
func (b *Base) AdvanceDay() { b.book.AdvanceDay() }

// OnFill applies a confirmed fill to the book.
func (b *Base) OnFill(fill domain.Fill) error { return b.book.Apply(fill) }

// Symbols returns the slice's symbols in lexical order so strategies emit
// signals deterministically.
func Symbols(slice domain.Slice) []string {
	out := make([]string, 0, len(slice.History))
	for sym := range slice.History {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered strategies ordered by name.
func (r *Registry) All() []Strategy {
	names := r.List()
	out := make([]Strategy, len(names))
	for i, name := range names {
		out[i] = r.strategies[name]
	}
	return out
}

// Len returns the number of registered strategies.
func (r *Registry) Len() int {
	return len(r.strategies)
}
