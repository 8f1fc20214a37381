package us

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantfolio/internal/domain"
	"quantfolio/internal/gather"
	"quantfolio/internal/indicator"
	"quantfolio/internal/store"
)

var start = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   [][]string
	fail    int // fail this many calls before succeeding
	history map[string]int
}

func (f *fakeFetcher) FetchDailyBars(_ context.Context, symbols []string, _, _ time.Time) (map[string][]domain.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, symbols)
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("503 service unavailable")
	}
	out := map[string][]domain.Bar{}
	for _, sym := range symbols {
		n := f.history[sym]
		// Returned newest first to exercise sorting.
		for i := n - 1; i >= 0; i-- {
			out[sym] = append(out[sym], domain.Bar{
				Symbol: sym, Timestamp: start.AddDate(0, 0, i),
				High: 101, Low: 99, Close: 100 + float64(i%3), Volume: 1000,
			})
		}
	}
	return out, nil
}

func newTestGatherer(t *testing.T, f BarFetcher, ps *store.ParquetStore, dir string, symbols ...string) *DailyBarGatherer {
	t.Helper()
	g := NewDailyBarGatherer(f, ps, Config{
		Symbols:     symbols,
		Dates:       gather.DateRange{Start: start, End: start.AddDate(0, 0, 60)},
		BatchSize:   2,
		MaxWorkers:  2,
		Indicators:  indicator.Options{ShortWindow: 5, LongWindow: 10, RSIPeriod: 14, ATRPeriod: 14, VolumeWindow: 20},
		ProgressDir: dir,
	})
	g.retryDelay = 0
	return g
}

func TestDailyBarGathererName(t *testing.T) {
	assert.Equal(t, "us-daily", NewDailyBarGatherer(nil, nil, Config{}).Name())
}

func TestDailyBarGathererWritesEnrichedBars(t *testing.T) {
	dir := t.TempDir()
	ps := store.NewParquetStore(dir)
	f := &fakeFetcher{history: map[string]int{"AAPL": 40, "MSFT": 30, "TSLA": 25}}

	g := newTestGatherer(t, f, ps, dir, "aapl", "MSFT", "TSLA", "NONE")
	require.NoError(t, g.Run(context.Background()))

	bars, err := ps.ReadBars(context.Background(), "AAPL", "us", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, bars, 40)
	assert.True(t, bars[0].Timestamp.Before(bars[1].Timestamp))
	_, ok := bars[39].Indicator(domain.IndRSI)
	assert.True(t, ok)
	_, ok = bars[39].Indicator(domain.IndATR)
	assert.True(t, ok)

	syms, err := ps.ListSymbols(context.Background(), "us")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, syms)
	assert.Len(t, f.calls, 2)

	// A rerun for the same end date only revisits symbols with no data.
	f.calls = nil
	g = newTestGatherer(t, f, ps, dir, "AAPL", "MSFT", "TSLA", "NONE")
	require.NoError(t, g.Run(context.Background()))
	require.Len(t, f.calls, 1)
	assert.Equal(t, []string{"NONE"}, f.calls[0])
}

func TestDailyBarGathererRetries(t *testing.T) {
	dir := t.TempDir()
	ps := store.NewParquetStore(dir)
	f := &fakeFetcher{fail: 2, history: map[string]int{"AAPL": 5}}

	g := newTestGatherer(t, f, ps, dir, "AAPL")
	require.NoError(t, g.Run(context.Background()))
	assert.Len(t, f.calls, 3)

	bars, err := ps.ReadBars(context.Background(), "AAPL", "us", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, bars, 5)
}

func TestDailyBarGathererSkipsFailedBatch(t *testing.T) {
	dir := t.TempDir()
	ps := store.NewParquetStore(dir)
	f := &fakeFetcher{fail: 10, history: map[string]int{"AAPL": 5}}

	g := newTestGatherer(t, f, ps, dir, "AAPL")
	require.NoError(t, g.Run(context.Background()), "batch failures are logged, not fatal")
	assert.Len(t, f.calls, fetchAttempts)

	syms, err := ps.ListSymbols(context.Background(), "us")
	require.NoError(t, err)
	assert.Empty(t, syms)
}

func TestProgressTrackerResetsOnNewEndDate(t *testing.T) {
	dir := t.TempDir()
	pt, err := newProgressTracker(dir, "2024-03-01")
	require.NoError(t, err)
	require.NoError(t, pt.MarkDone([]string{"AAPL", "MSFT"}))
	require.NoError(t, pt.Close())

	pt, err = newProgressTracker(dir, "2024-03-01")
	require.NoError(t, err)
	assert.True(t, pt.Done("AAPL"))
	assert.False(t, pt.Done("TSLA"))
	require.NoError(t, pt.Close())

	pt, err = newProgressTracker(dir, "2024-03-04")
	require.NoError(t, err)
	defer pt.Close()
	assert.False(t, pt.Done("AAPL"))
}

func TestDailyBarGathererRejectsOpenRange(t *testing.T) {
	g := NewDailyBarGatherer(&fakeFetcher{}, store.NewParquetStore(t.TempDir()), Config{
		Symbols:     []string{"AAPL"},
		Dates:       gather.DateRange{Start: start},
		ProgressDir: t.TempDir(),
	})
	assert.ErrorContains(t, g.Run(context.Background()), "start and end")
}

func TestDailyBarGathererRegatherKeepsIndicators(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	ps := store.NewParquetStore(dataDir)
	f := &fakeFetcher{history: map[string]int{"AAPL": 60}}

	require.NoError(t, newTestGatherer(t, f, ps, t.TempDir(), "AAPL").Run(ctx))
	before, err := ps.ReadBars(ctx, "AAPL", "us", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, before, 60)

	// Attach sentiment to a stored bar inside the tail window.
	day55 := before[55]
	day55.Indicators[domain.IndSentiment] = 0.7
	require.NoError(t, ps.WriteBars(ctx, "us", []domain.Bar{day55}))

	tail := newTestGatherer(t, f, ps, t.TempDir(), "AAPL")
	tail.dates = gather.DateRange{Start: start.AddDate(0, 0, 50), End: start.AddDate(0, 0, 59)}
	require.NoError(t, tail.Run(ctx))

	after, err := ps.ReadBars(ctx, "AAPL", "us", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, after, 60)
	for i := 50; i < 60; i++ {
		for _, name := range []string{domain.IndRSI, domain.IndATR, domain.IndMALong, domain.IndMAShort, domain.IndVolumeRatio} {
			want, ok := before[i].Indicator(name)
			require.True(t, ok, "%s missing before re-gather on day %d", name, i)
			got, ok := after[i].Indicator(name)
			require.True(t, ok, "%s erased by re-gather on day %d", name, i)
			assert.InDelta(t, want, got, 1e-9, "%s on day %d", name, i)
		}
	}
	s, ok := after[55].Indicator(domain.IndSentiment)
	require.True(t, ok, "stored sentiment must survive a re-gather")
	assert.Equal(t, 0.7, s)
}
