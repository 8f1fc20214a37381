// Package indicator computes the technical indicators attached to daily bars
// before they are handed to the simulation engine.
package indicator

import (
	"math"

	"quantfolio/internal/domain"
)

// Options selects the indicator windows used by Enrich.
type Options struct {
	ShortWindow  int // short moving average
	LongWindow   int // long moving average
	RSIPeriod    int
	ATRPeriod    int
	VolumeWindow int // baseline for volume ratio
}

// DefaultOptions returns the windows used when nothing else is configured.
func DefaultOptions() Options {
	return Options{
		ShortWindow:  50,
		LongWindow:   200,
		RSIPeriod:    14,
		ATRPeriod:    14,
		VolumeWindow: 20,
	}
}

// SMA returns the simple moving average of the last n values, or false when
// fewer than n values are available.
func SMA(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) < n {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n), true
}

// RSI returns Wilder's relative strength index series for closes. Entries
// before the first computable value are NaN.
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// TrueRange returns the true range of cur given the previous close.
func TrueRange(cur domain.Bar, prevClose float64) float64 {
	hl := cur.High - cur.Low
	hc := math.Abs(cur.High - prevClose)
	lc := math.Abs(cur.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// ATR returns Wilder's average true range series. Entries before the first
// computable value are NaN.
func ATR(bars []domain.Bar, period int) []float64 {
	out := nanSlice(len(bars))
	if period <= 0 || len(bars) <= period {
		return out
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += TrueRange(bars[i], bars[i-1].Close)
	}
	atr := sum / float64(period)
	out[period] = atr

	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + TrueRange(bars[i], bars[i-1].Close)) / float64(period)
		out[i] = atr
	}
	return out
}

// Enrich returns a copy of bars (one symbol, ascending) with every
// computable indicator attached. Existing indicators such as sentiment are
// preserved.
func Enrich(bars []domain.Bar, opts Options) []domain.Bar {
	out := make([]domain.Bar, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	rsi := RSI(closes, opts.RSIPeriod)
	atr := ATR(bars, opts.ATRPeriod)

	for i, b := range bars {
		ind := make(domain.Indicators, len(b.Indicators)+6)
		for k, v := range b.Indicators {
			ind[k] = v
		}

		if !math.IsNaN(rsi[i]) {
			ind[domain.IndRSI] = rsi[i]
		}
		if !math.IsNaN(atr[i]) {
			ind[domain.IndATR] = atr[i]
		}
		if v, ok := SMA(closes[:i+1], opts.ShortWindow); ok {
			ind[domain.IndMAShort] = v
		}
		if v, ok := SMA(closes[:i+1], opts.LongWindow); ok {
			ind[domain.IndMALong] = v
		}
		if i > 0 && !math.IsNaN(atr[i-1]) && atr[i-1] > 0 {
			ind[domain.IndVolatilityRatio] = TrueRange(b, bars[i-1].Close) / atr[i-1]
		}
		if opts.VolumeWindow > 0 && i >= opts.VolumeWindow {
			sum := 0.0
			for _, prev := range bars[i-opts.VolumeWindow : i] {
				sum += float64(prev.Volume)
			}
			if avg := sum / float64(opts.VolumeWindow); avg > 0 {
				ind[domain.IndVolumeRatio] = float64(b.Volume) / avg
			}
		}

		b.Indicators = ind
		out[i] = b
	}
	return out
}

// Returns converts closes into simple period-over-period returns. Non-positive
// prices produce a zero return.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] > 0 {
			out[i-1] = closes[i]/closes[i-1] - 1
		}
	}
	return out
}

// MeanStd returns the mean and sample standard deviation of values.
func MeanStd(values []float64) (mean, std float64) {
	n := len(values)
	if n == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(n-1))
}

// Pearson returns the correlation coefficient of a and b over their common
// length. It returns false when either series has zero variance.
func Pearson(a, b []float64) (float64, bool) {
	n := min(len(a), len(b))
	if n < 2 {
		return 0, false
	}
	a, b = a[len(a)-n:], b[len(b)-n:]
	ma, _ := MeanStd(a)
	mb, _ := MeanStd(b)

	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0, false
	}
	return cov / math.Sqrt(va*vb), true
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
