package correlation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantfolio/internal/config"
	"quantfolio/internal/domain"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func series(sym string, closes []float64) []domain.Bar {
	out := make([]domain.Bar, len(closes))
	for i, c := range closes {
		out[i] = domain.Bar{Symbol: sym, Timestamp: day0.AddDate(0, 0, i), Close: c}
	}
	return out
}

// wave returns n closes oscillating around base with the given phase.
func wave(n int, base, amp, phase float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + amp*math.Sin(float64(i)*0.7+phase)
	}
	return out
}

func testSlice() domain.Slice {
	return domain.Slice{Date: day0.AddDate(0, 0, 39), History: map[string][]domain.Bar{
		"AAA": series("AAA", wave(40, 100, 3, 0)),
		"BBB": series("BBB", wave(40, 50, 1.5, 0)),    // moves with AAA
		"CCC": series("CCC", wave(40, 80, 2, math.Pi)), // moves against AAA
		"NEW": series("NEW", wave(5, 20, 1, 0)),       // too little history
	}}
}

func buy(sym string, conf float64) domain.Signal {
	return domain.Signal{Strategy: "s", Symbol: sym, Side: domain.SideBuy, Shares: 1, Price: 1, Confidence: conf}
}

func newFilter() *Filter {
	return NewFilter(config.Correlation{Enabled: true, Lookback: 30, Threshold: 0.8, MinObservations: 20})
}

func TestCorrelation(t *testing.T) {
	f := newFilter()
	c, ok := f.Correlation("AAA", "BBB", testSlice())
	require.True(t, ok)
	assert.Greater(t, c, 0.8)

	c, ok = f.Correlation("AAA", "CCC", testSlice())
	require.True(t, ok)
	assert.Less(t, c, 0.0)

	_, ok = f.Correlation("AAA", "NEW", testSlice())
	assert.False(t, ok, "short history is not trusted")
}

func TestFilterKeepsHigherConfidence(t *testing.T) {
	f := newFilter()
	in := []domain.Signal{buy("AAA", 0.4), buy("BBB", 0.9), buy("CCC", 0.5)}

	res := f.Filter(in, nil, testSlice())
	require.Len(t, res.Accepted, 2)
	assert.Equal(t, "BBB", res.Accepted[0].Symbol)
	assert.Equal(t, "CCC", res.Accepted[1].Symbol)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "AAA", res.Rejected[0].Signal.Symbol)
	assert.Contains(t, res.Rejected[0].Reason, "accepted symbol BBB")
}

func TestFilterTieBreaksOnSymbol(t *testing.T) {
	res := newFilter().Filter([]domain.Signal{buy("BBB", 0.5), buy("AAA", 0.5)}, nil, testSlice())
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, "AAA", res.Accepted[0].Symbol)
}

func TestFilterAgainstHoldings(t *testing.T) {
	in := []domain.Signal{buy("BBB", 0.9), buy("NEW", 0.9)}
	res := newFilter().Filter(in, []string{"AAA"}, testSlice())

	require.Len(t, res.Accepted, 1)
	assert.Equal(t, "NEW", res.Accepted[0].Symbol)
	require.Len(t, res.Rejected, 1)
	assert.Contains(t, res.Rejected[0].Reason, "held symbol AAA")
}

func TestFilterPassesExitsAndSameSymbol(t *testing.T) {
	sell := domain.Signal{Strategy: "s", Symbol: "BBB", Side: domain.SideSell, Shares: 1}
	in := []domain.Signal{buy("AAA", 0.9), sell, buy("AAA", 0.3)}
	res := newFilter().Filter(in, []string{"AAA"}, testSlice())
	assert.Equal(t, in, res.Accepted)
	assert.Empty(t, res.Rejected)
}

func TestFilterIdempotent(t *testing.T) {
	f := newFilter()
	in := []domain.Signal{buy("AAA", 0.4), buy("BBB", 0.9), buy("CCC", 0.5), buy("NEW", 0.1)}

	first := f.Filter(in, nil, testSlice())
	second := f.Filter(first.Accepted, nil, testSlice())
	assert.Equal(t, first.Accepted, second.Accepted)
	assert.Empty(t, second.Rejected)
}
