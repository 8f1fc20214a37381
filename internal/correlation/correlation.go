// Package correlation bounds concentrated exposure by dropping entry signals
// whose symbols move too closely with symbols already held or already
// accepted in the same period.
package correlation

import (
	"fmt"
	"sort"

	"quantfolio/internal/config"
	"quantfolio/internal/domain"
	"quantfolio/internal/indicator"
)

// Rejection records a signal the filter dropped and why.
type Rejection struct {
	Signal domain.Signal
	Reason string
}

// Result is the outcome of one Filter call. Accepted preserves the input
// order of the surviving signals.
type Result struct {
	Accepted []domain.Signal
	Rejected []Rejection
}

// Filter compares trailing returns over a fixed lookback.
type Filter struct {
	lookback        int
	threshold       float64
	minObservations int
}

// NewFilter creates a Filter from the correlation configuration.
func NewFilter(cfg config.Correlation) *Filter {
	return &Filter{
		lookback:        cfg.Lookback,
		threshold:       cfg.Threshold,
		minObservations: cfg.MinObservations,
	}
}

// Filter drops BUY candidates correlated above the threshold with a held
// symbol or with a higher-ranked candidate. Candidates are ranked by
// confidence, then symbol. Exits always pass. Pairs with too little
// overlapping history or zero variance count as uncorrelated, and two
// signals on the same symbol are left to the risk manager.
func (f *Filter) Filter(candidates []domain.Signal, held []string, slice domain.Slice) Result {
	returns := make(map[string][]float64)
	trailing := func(sym string) []float64 {
		r, ok := returns[sym]
		if !ok {
			r = f.trailingReturns(slice, sym)
			returns[sym] = r
		}
		return r
	}

	order := make([]int, 0, len(candidates))
	for i, s := range candidates {
		if s.Side == domain.SideBuy {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := candidates[order[a]], candidates[order[b]]
		if sa.Confidence != sb.Confidence {
			return sa.Confidence > sb.Confidence
		}
		return sa.Symbol < sb.Symbol
	})

	heldSyms := append([]string(nil), held...)
	sort.Strings(heldSyms)

	dropped := make(map[int]string)
	var accepted []string
	for _, idx := range order {
		sig := candidates[idx]
		if reason, hit := f.conflict(sig.Symbol, heldSyms, "held", trailing); hit {
			dropped[idx] = reason
			continue
		}
		if reason, hit := f.conflict(sig.Symbol, accepted, "accepted", trailing); hit {
			dropped[idx] = reason
			continue
		}
		accepted = append(accepted, sig.Symbol)
	}

	var res Result
	for i, s := range candidates {
		if reason, ok := dropped[i]; ok {
			res.Rejected = append(res.Rejected, Rejection{Signal: s, Reason: reason})
			continue
		}
		res.Accepted = append(res.Accepted, s)
	}
	return res
}

// Correlation returns the return correlation of a and b over the lookback
// and whether enough overlapping observations exist to trust it.
func (f *Filter) Correlation(a, b string, slice domain.Slice) (float64, bool) {
	return f.pair(f.trailingReturns(slice, a), f.trailingReturns(slice, b))
}

func (f *Filter) trailingReturns(slice domain.Slice, sym string) []float64 {
	h := slice.History[sym]
	if len(h) > f.lookback+1 {
		h = h[len(h)-f.lookback-1:]
	}
	closes := make([]float64, len(h))
	for i, b := range h {
		closes[i] = b.Close
	}
	return indicator.Returns(closes)
}

func (f *Filter) conflict(sym string, against []string, kind string, trailing func(string) []float64) (string, bool) {
	for _, other := range against {
		if other == sym {
			continue
		}
		c, ok := f.pair(trailing(sym), trailing(other))
		if ok && c > f.threshold {
			return fmt.Sprintf("correlation %.2f with %s symbol %s exceeds %.2f", c, kind, other, f.threshold), true
		}
	}
	return "", false
}

func (f *Filter) pair(ra, rb []float64) (float64, bool) {
	n := min(len(ra), len(rb))
	if n < max(f.minObservations, 2) {
		return 0, false
	}
	return indicator.Pearson(ra[len(ra)-n:], rb[len(rb)-n:])
}
