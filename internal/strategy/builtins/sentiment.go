package builtins

import (
	"context"
	"fmt"

	"quantfolio/internal/domain"
	"quantfolio/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Sentiment)(nil)

// SentimentName is the registry key of the sentiment + technical strategy.
const SentimentName = "sentiment"

// Sentiment combines an upstream sentiment score with RSI: it buys oversold
// symbols whose sentiment is strong and exits when sentiment fades.
type Sentiment struct {
	strategy.Base
	buyThreshold  float64
	sellThreshold float64
	rsiOversold   float64
	maxHoldDays   int
}

// NewSentiment creates a Sentiment strategy.
func NewSentiment(buyThreshold, sellThreshold, rsiOversold float64, maxHoldDays int, sizer strategy.Sizer) *Sentiment {
	return &Sentiment{
		Base:          strategy.NewBase(SentimentName, sizer),
		buyThreshold:  buyThreshold,
		sellThreshold: sellThreshold,
		rsiOversold:   rsiOversold,
		maxHoldDays:   maxHoldDays,
	}
}

// GenerateSignals implements strategy.Strategy.
func (s *Sentiment) GenerateSignals(_ context.Context, slice domain.Slice) ([]domain.Signal, error) {
	var out []domain.Signal
	for _, sym := range strategy.Symbols(slice) {
		bar, ok := slice.Latest(sym)
		if !ok {
			continue
		}
		score, hasScore := bar.Indicator(domain.IndSentiment)

		if pos, held := s.Book().Position(sym); held {
			var reason string
			switch {
			case hasScore && score < s.sellThreshold:
				reason = fmt.Sprintf("sentiment %.2f below %.2f", score, s.sellThreshold)
			case s.maxHoldDays > 0 && pos.DaysHeld >= s.maxHoldDays:
				reason = fmt.Sprintf("held %d periods (max %d)", pos.DaysHeld, s.maxHoldDays)
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

		rsi, hasRSI := bar.Indicator(domain.IndRSI)
		if !hasScore || !hasRSI || score <= s.buyThreshold || rsi >= s.rsiOversold {
			continue
		}
		shares := s.Sizer().Shares(bar.Close)
		if shares == 0 {
			continue
		}
		strength := 1.0
		if s.buyThreshold < 1 {
			strength = (score - s.buyThreshold) / (1 - s.buyThreshold)
		}
		out = append(out, domain.Signal{
			Strategy:   s.Name(),
			Symbol:     sym,
			Side:       domain.SideBuy,
			Shares:     shares,
			Price:      bar.Close,
			Confidence: clamp01(0.5 + 0.5*strength),
			Reason:     fmt.Sprintf("sentiment %.2f with RSI %.1f", score, rsi),
		})
	}
	return out, nil
}
