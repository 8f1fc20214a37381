// Package builtins provides the built-in strategy implementations.
package builtins

import (
	"context"
	"fmt"
	"math"

	"quantfolio/internal/domain"
	"quantfolio/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MeanReversion)(nil)

// MeanReversionName is the registry key of the mean-reversion strategy.
const MeanReversionName = "mean_reversion"

// MeanReversion buys oversold symbols (RSI below a threshold) and exits
// after a fixed number of periods.
type MeanReversion struct {
	strategy.Base
	threshold float64
	holdDays  int
}

// NewMeanReversion creates a MeanReversion strategy.
func NewMeanReversion(threshold float64, holdDays int, sizer strategy.Sizer) *MeanReversion {
	return &MeanReversion{
		Base:      strategy.NewBase(MeanReversionName, sizer),
		threshold: threshold,
		holdDays:  holdDays,
	}
}

// GenerateSignals emits a BUY when RSI < threshold on an unheld symbol and a
// SELL once a position has been held for holdDays periods.
func (s *MeanReversion) GenerateSignals(_ context.Context, slice domain.Slice) ([]domain.Signal, error) {
	var out []domain.Signal
	for _, sym := range strategy.Symbols(slice) {
		bar, ok := slice.Latest(sym)
		if !ok {
			continue
		}

		if pos, held := s.Book().Position(sym); held {
			if pos.DaysHeld >= s.holdDays {
				out = append(out, domain.Signal{
					Strategy:   s.Name(),
					Symbol:     sym,
					Side:       domain.SideSell,
					Shares:     pos.Shares,
					Price:      bar.Close,
					Confidence: 1.0,
					Reason:     fmt.Sprintf("held %d periods (hold period %d)", pos.DaysHeld, s.holdDays),
				})
			}
			continue
		}

		rsi, ok := bar.Indicator(domain.IndRSI)
		if !ok || rsi >= s.threshold || s.threshold <= 0 {
			continue
		}
		shares := s.Sizer().Shares(bar.Close)
		if shares == 0 {
			continue
		}
		out = append(out, domain.Signal{
			Strategy:   s.Name(),
			Symbol:     sym,
			Side:       domain.SideBuy,
			Shares:     shares,
			Price:      bar.Close,
			Confidence: clamp01((s.threshold - rsi) / s.threshold),
			Reason:     fmt.Sprintf("RSI %.1f below %.1f", rsi, s.threshold),
		})
	}
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
