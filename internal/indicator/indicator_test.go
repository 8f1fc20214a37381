package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantfolio/internal/domain"
)

func TestSMA(t *testing.T) {
	v, ok := SMA([]float64{1, 2, 3, 4}, 2)
	require.True(t, ok)
	assert.Equal(t, 3.5, v)

	_, ok = SMA([]float64{1, 2}, 3)
	assert.False(t, ok)
}

func TestRSIBounds(t *testing.T) {
	up := make([]float64, 30)
	for i := range up {
		up[i] = float64(100 + i)
	}
	rsi := RSI(up, 14)
	assert.True(t, math.IsNaN(rsi[13]))
	assert.Equal(t, 100.0, rsi[14])

	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 50
	}
	assert.Equal(t, 50.0, RSI(flat, 14)[29])

	down := make([]float64, 30)
	for i := range down {
		down[i] = float64(200 - i)
	}
	assert.InDelta(t, 0.0, RSI(down, 14)[29], 1e-9)
}

func TestATRConstantRange(t *testing.T) {
	bars := make([]domain.Bar, 20)
	for i := range bars {
		bars[i] = domain.Bar{High: 102, Low: 98, Close: 100}
	}
	atr := ATR(bars, 14)
	assert.True(t, math.IsNaN(atr[0]))
	assert.InDelta(t, 4.0, atr[19], 1e-9)
}

func TestEnrichAttachesIndicators(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, 30)
	for i := range bars {
		bars[i] = domain.Bar{
			Symbol:     "AAPL",
			Timestamp:  day.AddDate(0, 0, i),
			High:       101,
			Low:        99,
			Close:      100,
			Volume:     1000,
			Indicators: domain.Indicators{domain.IndSentiment: 0.7},
		}
	}

	out := Enrich(bars, Options{ShortWindow: 5, LongWindow: 10, RSIPeriod: 14, ATRPeriod: 14, VolumeWindow: 20})
	require.Len(t, out, 30)

	_, ok := out[3].Indicator(domain.IndMAShort)
	assert.False(t, ok, "short MA must be absent before the window fills")

	last := out[29]
	for _, name := range []string{domain.IndRSI, domain.IndATR, domain.IndMAShort, domain.IndMALong, domain.IndVolumeRatio, domain.IndVolatilityRatio, domain.IndSentiment} {
		_, ok := last.Indicator(name)
		assert.True(t, ok, "missing %s", name)
	}
	vr, _ := last.Indicator(domain.IndVolumeRatio)
	assert.InDelta(t, 1.0, vr, 1e-9)

	// Input bars are not mutated.
	_, ok = bars[29].Indicator(domain.IndRSI)
	assert.False(t, ok)
}

func TestPearson(t *testing.T) {
	a := []float64{0.01, -0.02, 0.03, 0.0, 0.015}
	c, ok := Pearson(a, a)
	require.True(t, ok)
	assert.InDelta(t, 1.0, c, 1e-12)

	neg := make([]float64, len(a))
	for i, v := range a {
		neg[i] = -v
	}
	c, ok = Pearson(a, neg)
	require.True(t, ok)
	assert.InDelta(t, -1.0, c, 1e-12)

	_, ok = Pearson(a, []float64{0, 0, 0, 0, 0})
	assert.False(t, ok, "zero variance is not a correlation")
}

func TestReturnsAndMeanStd(t *testing.T) {
	r := Returns([]float64{100, 110, 99})
	require.Len(t, r, 2)
	assert.InDelta(t, 0.1, r[0], 1e-12)
	assert.InDelta(t, -0.1, r[1], 1e-12)

	m, s := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, m, 1e-12)
	assert.InDelta(t, 2.138089935, s, 1e-9)
}
