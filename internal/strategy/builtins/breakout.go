package builtins

import (
	"context"
	"fmt"

	"quantfolio/internal/domain"
	"quantfolio/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*VolatilityBreakout)(nil)

// VolatilityBreakoutName is the registry key of the breakout strategy.
const VolatilityBreakoutName = "volatility_breakout"

// VolatilityBreakout buys upside moves that arrive with volatility and
// volume well above their baselines.
type VolatilityBreakout struct {
	strategy.Base
	volMultiple    float64
	volumeMultiple float64
	maxHoldDays    int
}

// NewVolatilityBreakout creates a VolatilityBreakout strategy.
func NewVolatilityBreakout(volMultiple, volumeMultiple float64, maxHoldDays int, sizer strategy.Sizer) *VolatilityBreakout {
	return &VolatilityBreakout{
		Base:           strategy.NewBase(VolatilityBreakoutName, sizer),
		volMultiple:    volMultiple,
		volumeMultiple: volumeMultiple,
		maxHoldDays:    maxHoldDays,
	}
}

// GenerateSignals emits a BUY when the volatility ratio and volume ratio
// both exceed their multiples on an up close, and a SELL when the position
// reaches its maximum hold or the close breaks below the previous low.
func (s *VolatilityBreakout) GenerateSignals(_ context.Context, slice domain.Slice) ([]domain.Signal, error) {
	var out []domain.Signal
	for _, sym := range strategy.Symbols(slice) {
		h := slice.History[sym]
		if len(h) < 2 {
			continue
		}
		prev, bar := h[len(h)-2], h[len(h)-1]

		if pos, held := s.Book().Position(sym); held {
			var reason string
			switch {
			case s.maxHoldDays > 0 && pos.DaysHeld >= s.maxHoldDays:
				reason = fmt.Sprintf("held %d periods (max %d)", pos.DaysHeld, s.maxHoldDays)
			case bar.Close < prev.Low:
				reason = fmt.Sprintf("close %.2f broke previous low %.2f", bar.Close, prev.Low)
			}
			if reason != "" {
				out = append(out, domain.Signal{
					Strategy:   s.Name(),
					Symbol:     sym,
					Side:       domain.SideSell,
					Shares:     pos.Shares,
					Price:      bar.Close,
					Confidence: 1.0,
					Reason:     reason,
				})
			}
			continue
		}

		volR, ok := bar.Indicator(domain.IndVolatilityRatio)
		if !ok {
			continue
		}
		volumeR, ok := bar.Indicator(domain.IndVolumeRatio)
		if !ok {
			continue
		}
		if volR < s.volMultiple || volumeR < s.volumeMultiple || bar.Close <= prev.Close {
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
			Confidence: clamp01((volR/s.volMultiple + volumeR/s.volumeMultiple) / 4),
			Reason:     fmt.Sprintf("breakout: volatility %.2fx, volume %.2fx", volR, volumeR),
		})
	}
	return out, nil
}
