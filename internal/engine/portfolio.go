package engine

import (
	"fmt"
	"math"
	"sort"

	"quantfolio/internal/domain"
)

// reconcileTolerance bounds the drift allowed between cash-based equity and
// the P&L decomposition before Reconcile reports an error.
const reconcileTolerance = 1e-6

type posKey struct {
	strategy string
	symbol   string
}

// Portfolio is the authoritative state of a run: cash, every strategy's
// positions, and the running realised P&L and cost totals. It is owned by
// the backtester and mutated only from its control loop.
type Portfolio struct {
	initial   float64
	cash      float64
	realized  float64 // against the quoted cost basis, before costs
	costs     float64 // slippage + commission paid on every fill
	positions map[posKey]*domain.Position
	marks     map[string]float64 // last known close per symbol
}

// NewPortfolio creates a flat portfolio holding initialCapital in cash.
func NewPortfolio(initialCapital float64) *Portfolio {
	return &Portfolio{
		initial:   initialCapital,
		cash:      initialCapital,
		positions: make(map[posKey]*domain.Position),
		marks:     make(map[string]float64),
	}
}

// InitialCapital returns the starting cash.
func (p *Portfolio) InitialCapital() float64 { return p.initial }

// Cash returns the uninvested balance after all fills and their costs.
func (p *Portfolio) Cash() float64 { return p.cash }

// Realized returns the gross realized P&L of closed shares, before costs.
func (p *Portfolio) Realized() float64 { return p.realized }

// Costs returns the slippage and commission paid across every fill.
func (p *Portfolio) Costs() float64 { return p.costs }

// Mark records the latest close for symbol.
func (p *Portfolio) Mark(symbol string, price float64) {
	if price > 0 {
		p.marks[symbol] = price
	}
}

// price returns the last known close for the position's symbol, falling
// back to its cost basis when the symbol has never been marked.
func (p *Portfolio) price(pos *domain.Position) float64 {
	if px, ok := p.marks[pos.Symbol]; ok {
		return px
	}
	return pos.AvgCost
}

// Apply books a fill and returns its realised P&L net of the entry costs
// carried by the closed shares and the exit's own costs. Exits that exceed
// the holding are rejected without changing state.
func (p *Portfolio) Apply(fill domain.Fill) (float64, error) {
	if fill.Shares <= 0 {
		return 0, fmt.Errorf("fill for %s has non-positive shares %d", fill.Symbol, fill.Shares)
	}
	k := posKey{fill.Strategy, fill.Symbol}
	pos, held := p.positions[k]
	n := float64(fill.Shares)

	switch fill.Side {
	case domain.SideBuy:
		p.cash -= fill.QuotedPrice*n + fill.TotalCost
		p.costs += fill.TotalCost
		if !held {
			p.positions[k] = &domain.Position{
				Strategy:   fill.Strategy,
				Symbol:     fill.Symbol,
				Shares:     fill.Shares,
				AvgCost:    fill.QuotedPrice,
				EntryCosts: fill.TotalCost,
				EntryTime:  fill.Timestamp,
			}
		} else {
			total := pos.Shares + fill.Shares
			pos.AvgCost = (pos.AvgCost*float64(pos.Shares) + fill.QuotedPrice*n) / float64(total)
			pos.Shares = total
			pos.EntryCosts += fill.TotalCost
		}
		p.Mark(fill.Symbol, fill.QuotedPrice)
		return 0, nil

	case domain.SideSell:
		if !held || fill.Shares > pos.Shares {
			return 0, fmt.Errorf("%s: sell of %d %s exceeds holding", fill.Strategy, fill.Shares, fill.Symbol)
		}
		gross := n * (fill.QuotedPrice - pos.AvgCost)
		entryCosts := pos.EntryCosts * n / float64(pos.Shares)

		p.cash += fill.QuotedPrice*n - fill.TotalCost
		p.costs += fill.TotalCost
		p.realized += gross

		if fill.Shares == pos.Shares {
			delete(p.positions, k)
		} else {
			pos.Shares -= fill.Shares
			pos.EntryCosts -= entryCosts
		}
		p.Mark(fill.Symbol, fill.QuotedPrice)
		return gross - entryCosts - fill.TotalCost, nil

	default:
		return 0, fmt.Errorf("unknown side %q", fill.Side)
	}
}

// Holding returns the shares strategy holds in symbol.
func (p *Portfolio) Holding(strategy, symbol string) int64 {
	if pos, ok := p.positions[posKey{strategy, symbol}]; ok {
		return pos.Shares
	}
	return 0
}

// PositionCount returns the number of open positions held by strategy.
func (p *Portfolio) PositionCount(strategy string) int {
	n := 0
	for k := range p.positions {
		if k.strategy == strategy {
			n++
		}
	}
	return n
}

// Holders returns the strategies holding symbol in lexical order.
func (p *Portfolio) Holders(symbol string) []string {
	var out []string
	for k := range p.positions {
		if k.symbol == symbol {
			out = append(out, k.strategy)
		}
	}
	sort.Strings(out)
	return out
}

// HeldSymbols returns every symbol with at least one open position.
func (p *Portfolio) HeldSymbols() []string {
	seen := make(map[string]bool)
	var out []string
	for k := range p.positions {
		if !seen[k.symbol] {
			seen[k.symbol] = true
			out = append(out, k.symbol)
		}
	}
	sort.Strings(out)
	return out
}

// OpenPositions returns the number of (strategy, symbol) positions.
func (p *Portfolio) OpenPositions() int {
	return len(p.positions)
}

// Positions returns copies of every open position ordered by strategy,
// then symbol.
func (p *Portfolio) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strategy != out[j].Strategy {
			return out[i].Strategy < out[j].Strategy
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// GrossExposure returns the marked value of every open position.
func (p *Portfolio) GrossExposure() float64 {
	total := 0.0
	for _, pos := range p.positions {
		total += pos.MarketValue(p.price(pos))
	}
	return total
}

// Unrealized returns the mark-to-market P&L of open positions against the
// quoted cost basis.
func (p *Portfolio) Unrealized() float64 {
	total := 0.0
	for _, pos := range p.positions {
		total += pos.UnrealizedPnL(p.price(pos))
	}
	return total
}

// Equity returns cash plus the marked value of open positions.
func (p *Portfolio) Equity() float64 {
	return p.cash + p.GrossExposure()
}

// Reconcile checks equity = initial + realised + unrealised - costs.
func (p *Portfolio) Reconcile() error {
	want := p.initial + p.realized + p.Unrealized() - p.costs
	got := p.Equity()
	if math.Abs(got-want) > reconcileTolerance*math.Max(1, math.Abs(p.initial)) {
		return fmt.Errorf("equity %.6f does not reconcile with P&L decomposition %.6f", got, want)
	}
	return nil
}
