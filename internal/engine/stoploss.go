package engine

import (
	"log/slog"
	"sort"
)

// StopManager holds one long stop price per open symbol. Stops only move
// up.
type StopManager struct {
	multiplier float64
	stops      map[string]float64
	log        *slog.Logger
}

// NewStopManager creates a StopManager placing stops multiplier ATRs below
// the reference price.
func NewStopManager(multiplier float64, logger *slog.Logger) *StopManager {
	return &StopManager{
		multiplier: multiplier,
		stops:      make(map[string]float64),
		log:        logger,
	}
}

// Set stores entry - multiplier*atr as the stop for symbol. An existing
// stop is only replaced by a higher one. A missing or non-positive ATR
// leaves the symbol unprotected and logs a warning.
func (m *StopManager) Set(symbol string, entry, atr float64) {
	if atr <= 0 {
		m.log.Warn("no stop set: ATR unavailable", "symbol", symbol, "atr", atr)
		return
	}
	m.raise(symbol, entry-m.multiplier*atr)
}

// Check reports whether price has breached the stop for symbol.
func (m *StopManager) Check(symbol string, price float64) bool {
	stop, ok := m.stops[symbol]
	return ok && price <= stop
}

// UpdateTrailing recomputes the stop from price and replaces it only when
// the candidate is higher. Symbols without a stop are ignored.
func (m *StopManager) UpdateTrailing(symbol string, price, atr float64) {
	if _, ok := m.stops[symbol]; !ok || atr <= 0 {
		return
	}
	m.raise(symbol, price-m.multiplier*atr)
}

// Remove clears the stop for symbol.
func (m *StopManager) Remove(symbol string) {
	delete(m.stops, symbol)
}

// Stop returns the stop price for symbol.
func (m *StopManager) Stop(symbol string) (float64, bool) {
	s, ok := m.stops[symbol]
	return s, ok
}

// Symbols returns every symbol with a stop in lexical order.
func (m *StopManager) Symbols() []string {
	out := make([]string, 0, len(m.stops))
	for sym := range m.stops {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (m *StopManager) raise(symbol string, candidate float64) {
	if cur, ok := m.stops[symbol]; ok && cur >= candidate {
		return
	}
	m.stops[symbol] = candidate
}
