package strategy

import (
	"fmt"
	"sort"

	"quantfolio/internal/domain"
)

// Book tracks one strategy's open positions. There is at most one Position
// per symbol and share counts never go negative.
type Book struct {
	strategy  string
	positions map[string]*domain.Position
}

// NewBook creates an empty book owned by strategy.
func NewBook(strategy string) *Book {
	return &Book{
		strategy:  strategy,
		positions: make(map[string]*domain.Position),
	}
}

// Position returns a copy of the open position in symbol.
func (b *Book) Position(symbol string) (domain.Position, bool) {
	p, ok := b.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Holds reports whether the book has an open position in symbol.
func (b *Book) Holds(symbol string) bool {
	_, ok := b.positions[symbol]
	return ok
}

// Len returns the number of open positions.
func (b *Book) Len() int {
	return len(b.positions)
}

// Positions returns copies of every open position ordered by symbol.
func (b *Book) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// AdvanceDay increments the hold counter of every open position.
func (b *Book) AdvanceDay() {
	for _, p := range b.positions {
		p.DaysHeld++
	}
}

// Apply updates the book with a confirmed fill. A buy opens or adds to the
// position at a share-weighted average cost; a sell reduces it and removes
// it at zero. Selling more than is held is an error and leaves the book
// untouched.
func (b *Book) Apply(fill domain.Fill) error {
	if fill.Shares <= 0 {
		return fmt.Errorf("%s: fill for %s has non-positive shares %d", b.strategy, fill.Symbol, fill.Shares)
	}

	p, held := b.positions[fill.Symbol]
	switch fill.Side {
	case domain.SideBuy:
		if !held {
			b.positions[fill.Symbol] = &domain.Position{
				Strategy:   b.strategy,
				Symbol:     fill.Symbol,
				Shares:     fill.Shares,
				AvgCost:    fill.QuotedPrice,
				EntryCosts: fill.TotalCost,
				EntryTime:  fill.Timestamp,
			}
			return nil
		}
		total := p.Shares + fill.Shares
		p.AvgCost = (p.AvgCost*float64(p.Shares) + fill.QuotedPrice*float64(fill.Shares)) / float64(total)
		p.Shares = total
		p.EntryCosts += fill.TotalCost
		return nil

	case domain.SideSell:
		if !held {
			return fmt.Errorf("%s: sell of %s with no open position", b.strategy, fill.Symbol)
		}
		if fill.Shares > p.Shares {
			return fmt.Errorf("%s: sell of %d %s exceeds holding of %d", b.strategy, fill.Shares, fill.Symbol, p.Shares)
		}
		if fill.Shares == p.Shares {
			delete(b.positions, fill.Symbol)
			return nil
		}
		p.EntryCosts -= p.EntryCosts * float64(fill.Shares) / float64(p.Shares)
		p.Shares -= fill.Shares
		return nil

	default:
		return fmt.Errorf("%s: unknown side %q", b.strategy, fill.Side)
	}
}
