package builtins

import (
	"context"
	"fmt"

	"quantfolio/internal/domain"
	"quantfolio/internal/indicator"
	"quantfolio/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MACross)(nil)

// MACrossName is the registry key of the moving-average crossover strategy.
const MACrossName = "ma_crossover"

// MACross implements a moving average crossover strategy. It generates a buy
// signal when the short moving average crosses above the long one (golden
// cross) and a sell signal when it crosses below (death cross).
type MACross struct {
	strategy.Base
	shortWindow int
	longWindow  int
}

// NewMACross creates a new MACross strategy with the specified short and
// long moving average windows.
func NewMACross(short, long int, sizer strategy.Sizer) *MACross {
	return &MACross{
		Base:        strategy.NewBase(MACrossName, sizer),
		shortWindow: short,
		longWindow:  long,
	}
}

// GenerateSignals detects crossovers between the previous and current
// period. Symbols with fewer than longWindow bars are skipped.
func (s *MACross) GenerateSignals(_ context.Context, slice domain.Slice) ([]domain.Signal, error) {
	var out []domain.Signal
	for _, sym := range strategy.Symbols(slice) {
		h := slice.History[sym]
		if len(h) < s.longWindow || len(h) < 2 {
			continue
		}
		prevS, prevL, ok := s.averages(h[:len(h)-1])
		if !ok {
			continue
		}
		curS, curL, ok := s.averages(h)
		if !ok {
			continue
		}
		bar := h[len(h)-1]

		pos, held := s.Book().Position(sym)
		switch {
		case !held && prevS <= prevL && curS > curL:
			shares := s.Sizer().Shares(bar.Close)
			if shares == 0 {
				continue
			}
			gap := (curS - curL) / curL
			out = append(out, domain.Signal{
				Strategy:   s.Name(),
				Symbol:     sym,
				Side:       domain.SideBuy,
				Shares:     shares,
				Price:      bar.Close,
				Confidence: clamp01(0.5 + gap*10),
				Reason:     fmt.Sprintf("golden cross: MA%d %.2f above MA%d %.2f", s.shortWindow, curS, s.longWindow, curL),
			})
		case held && prevS >= prevL && curS < curL:
			out = append(out, domain.Signal{
				Strategy:   s.Name(),
				Symbol:     sym,
				Side:       domain.SideSell,
				Shares:     pos.Shares,
				Price:      bar.Close,
				Confidence: 1.0,
				Reason:     fmt.Sprintf("death cross: MA%d %.2f below MA%d %.2f", s.shortWindow, curS, s.longWindow, curL),
			})
		}
	}
	return out, nil
}

// averages returns the short and long averages as of the last bar of h. It
// prefers precomputed indicators and falls back to computing from closes.
func (s *MACross) averages(h []domain.Bar) (short, long float64, ok bool) {
	last := h[len(h)-1]
	short, okS := last.Indicator(domain.IndMAShort)
	long, okL := last.Indicator(domain.IndMALong)
	if okS && okL && long > 0 {
		return short, long, true
	}

	closes := make([]float64, len(h))
	for i, b := range h {
		closes[i] = b.Close
	}
	short, okS = indicator.SMA(closes, s.shortWindow)
	long, okL = indicator.SMA(closes, s.longWindow)
	return short, long, okS && okL && long > 0
}
