// Package regime classifies the recent market environment and gates
// strategy entries that are unsuited to it.
package regime

import (
	"fmt"
	"math"

	"quantfolio/internal/config"
	"quantfolio/internal/domain"
	"quantfolio/internal/indicator"
)

// tradingDays annualises daily volatility.
const tradingDays = 252

// Detector classifies an aggregate price path over a fixed lookback. It
// holds no state between calls.
type Detector struct {
	lookback       int
	highVolatility float64
	lowVolatility  float64
	trendThreshold float64
}

// NewDetector creates a Detector from the regime configuration.
func NewDetector(cfg config.Regime) *Detector {
	return &Detector{
		lookback:       cfg.Lookback,
		highVolatility: cfg.HighVolatility,
		lowVolatility:  cfg.LowVolatility,
		trendThreshold: cfg.TrendThreshold,
	}
}

// Classify labels the aggregate level series. It needs lookback+1 levels;
// shorter input yields RegimeUnknown.
//
//   - volatile: annualised volatility above highVolatility
//   - trending: efficiency ratio (net move / path length) at or above trendThreshold
//   - quiet: annualised volatility below lowVolatility
//   - choppy: everything else
func (d *Detector) Classify(levels []float64) domain.Regime {
	if d.lookback <= 0 || len(levels) < d.lookback+1 {
		return domain.RegimeUnknown
	}
	window := levels[len(levels)-d.lookback-1:]
	rets := indicator.Returns(window)
	_, std := indicator.MeanStd(rets)
	vol := std * math.Sqrt(tradingDays)

	path := 0.0
	for i := 1; i < len(window); i++ {
		path += math.Abs(window[i] - window[i-1])
	}
	efficiency := 0.0
	if path > 0 {
		efficiency = math.Abs(window[len(window)-1]-window[0]) / path
	}

	switch {
	case vol > d.highVolatility:
		return domain.RegimeVolatile
	case efficiency >= d.trendThreshold && path > 0:
		return domain.RegimeTrending
	case vol < d.lowVolatility:
		return domain.RegimeQuiet
	default:
		return domain.RegimeChoppy
	}
}

// ClassifySlice builds an equal-weighted index from every symbol in the
// slice with enough history and classifies it.
func (d *Detector) ClassifySlice(slice domain.Slice) domain.Regime {
	return d.Classify(AggregateIndex(slice, d.lookback))
}

// AggregateIndex returns lookback+1 levels of an equal-weighted index built
// from the trailing closes of every symbol with at least lookback+1 bars.
// The index starts at 1. It returns nil when no symbol qualifies.
func AggregateIndex(slice domain.Slice, lookback int) []float64 {
	if lookback <= 0 {
		return nil
	}
	sums := make([]float64, lookback)
	n := 0
	for _, h := range slice.History {
		if len(h) < lookback+1 {
			continue
		}
		closes := make([]float64, lookback+1)
		for i, b := range h[len(h)-lookback-1:] {
			closes[i] = b.Close
		}
		for i, r := range indicator.Returns(closes) {
			sums[i] += r
		}
		n++
	}
	if n == 0 {
		return nil
	}

	levels := make([]float64, lookback+1)
	levels[0] = 1
	for i, s := range sums {
		levels[i+1] = levels[i] * (1 + s/float64(n))
	}
	return levels
}

// ---------------------------------------------------------------------------
// Gating
// ---------------------------------------------------------------------------

type ruleKey struct {
	regime   domain.Regime
	strategy string
}

// Gate applies regime rules to entry signals.
type Gate struct {
	rules map[ruleKey]config.RegimeRule
}

// NewGate indexes the configured rules.
func NewGate(rules []config.RegimeRule) *Gate {
	g := &Gate{rules: make(map[ruleKey]config.RegimeRule, len(rules))}
	for _, r := range rules {
		g.rules[ruleKey{domain.Regime(r.Regime), r.Strategy}] = r
	}
	return g
}

// Apply returns the signal adjusted for the regime. ok is false when the
// signal is suppressed; reason explains any suppression or rescale. Exits
// are never gated.
func (g *Gate) Apply(r domain.Regime, sig domain.Signal) (out domain.Signal, ok bool, reason string) {
	if sig.Side != domain.SideBuy {
		return sig, true, ""
	}
	rule, found := g.rules[ruleKey{r, sig.Strategy}]
	if !found {
		return sig, true, ""
	}

	switch rule.Action {
	case "suppress":
		return sig, false, fmt.Sprintf("%s entries suppressed in %s regime", sig.Strategy, r)
	case "scale":
		scaled := int64(math.Floor(float64(sig.Shares) * rule.Factor))
		if scaled <= 0 {
			return sig, false, fmt.Sprintf("%s entry scaled to zero shares in %s regime", sig.Strategy, r)
		}
		out = sig
		out.Shares = scaled
		return out, true, fmt.Sprintf("scaled by %.2f in %s regime", rule.Factor, r)
	}
	return sig, true, ""
}
