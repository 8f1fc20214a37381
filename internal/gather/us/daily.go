// Package us gathers US equity daily bars from the Alpaca market-data API,
// attaches indicators, and writes them to the bar store for replay.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantfolio/internal/domain"
	"quantfolio/internal/gather"
	"quantfolio/internal/indicator"
	"quantfolio/internal/store"
	"quantfolio/internal/util"
)

// Compile-time interface check.
var _ gather.Gatherer = (*DailyBarGatherer)(nil)

const (
	fetchAttempts  = 3
	fetchBaseDelay = 2 * time.Second
)

// BarFetcher returns daily bars per symbol within [start, end].
type BarFetcher interface {
	FetchDailyBars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.Bar, error)
}

// AlpacaFetcher fetches daily bars through the Alpaca market-data client.
type AlpacaFetcher struct {
	client *marketdata.Client
	feed   string
}

// NewAlpacaFetcher creates an AlpacaFetcher. An empty dataURL uses the
// client's default endpoint.
func NewAlpacaFetcher(apiKey, apiSecret, dataURL, feed string) *AlpacaFetcher {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = "sip"
	}
	return &AlpacaFetcher{client: marketdata.NewClient(opts), feed: feed}
}

// FetchDailyBars fetches daily bars for multiple symbols in a single API call.
func (f *AlpacaFetcher) FetchDailyBars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	multiBars, err := f.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      marketdata.Feed(f.feed),
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	out := make(map[string][]domain.Bar, len(multiBars))
	for symbol, alpacaBars := range multiBars {
		sym := strings.ToUpper(symbol)
		for _, ab := range alpacaBars {
			out[sym] = append(out[sym], domain.Bar{
				Symbol:     sym,
				Timestamp:  ab.Timestamp.UTC().Truncate(24 * time.Hour),
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return out, nil
}

// DailyBarGatherer fetches daily bars for a configured symbol list in
// batches, enriches them with indicators, and writes them to a BarStore.
// Progress is tracked per end date so an interrupted run resumes.
type DailyBarGatherer struct {
	fetcher     BarFetcher
	store       store.BarStore
	symbols     []string
	dates       gather.DateRange
	batchSize   int
	maxWorkers  int
	opts        indicator.Options
	limiter     *util.RateLimiter
	retryDelay  time.Duration
	progressDir string
	log         *slog.Logger
}

// Config holds the DailyBarGatherer parameters.
type Config struct {
	Symbols     []string
	Dates       gather.DateRange
	BatchSize   int // symbols per API call
	MaxWorkers  int // concurrent batches
	RatePerMin  int // API calls per minute, 0 for unlimited
	Indicators  indicator.Options
	ProgressDir string
}

// NewDailyBarGatherer creates a DailyBarGatherer writing to s.
func NewDailyBarGatherer(fetcher BarFetcher, s store.BarStore, cfg Config) *DailyBarGatherer {
	g := &DailyBarGatherer{
		fetcher:     fetcher,
		store:       s,
		symbols:     cfg.Symbols,
		dates:       cfg.Dates,
		batchSize:   max(cfg.BatchSize, 1),
		maxWorkers:  max(cfg.MaxWorkers, 1),
		opts:        cfg.Indicators,
		retryDelay:  fetchBaseDelay,
		progressDir: cfg.ProgressDir,
		log:         slog.Default().With("gatherer", "us-daily"),
	}
	if cfg.RatePerMin > 0 {
		g.limiter = util.NewRateLimiter(cfg.RatePerMin, g.maxWorkers)
	}
	return g
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches, enriches and stores every configured symbol not already
// recorded as done for the end date. Failed batches are logged and skipped;
// Run returns an error only when setup fails or ctx is cancelled.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	if err := g.dates.Validate(); err != nil {
		return err
	}
	endDate := g.dates.End.Format(time.DateOnly)
	tracker, err := newProgressTracker(g.progressDir, endDate)
	if err != nil {
		return fmt.Errorf("creating progress tracker: %w", err)
	}
	defer tracker.Close()

	var remaining []string
	for _, sym := range g.symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" && !tracker.Done(sym) {
			remaining = append(remaining, sym)
		}
	}
	sort.Strings(remaining)

	var batches [][]string
	for i := 0; i < len(remaining); i += g.batchSize {
		batches = append(batches, remaining[i:min(i+g.batchSize, len(remaining))])
	}

	g.log.Info("starting us-daily",
		"endDate", endDate,
		"total", len(g.symbols),
		"remaining", len(remaining),
		"batches", len(batches),
	)
	if len(batches) == 0 {
		return nil
	}

	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		wg       sync.WaitGroup
		written  atomic.Int64
		empty    atomic.Int64
		runStart = time.Now()
	)

	workers := min(g.maxWorkers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batchIdx := range batchCh {
				if ctx.Err() != nil {
					return
				}
				n, misses, err := g.gatherBatch(ctx, batches[batchIdx], tracker)
				if err != nil {
					g.log.Error("batch failed",
						"batch", fmt.Sprintf("%d/%d", batchIdx+1, len(batches)),
						"err", err,
					)
					continue
				}
				written.Add(int64(n))
				empty.Add(int64(misses))
				g.log.Info("batch done",
					"batch", fmt.Sprintf("%d/%d", batchIdx+1, len(batches)),
					"symbols", n,
					"empty", misses,
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	g.log.Info("complete",
		"symbols", written.Load(),
		"empty", empty.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

// gatherBatch fetches one batch with retries, enriches each symbol's bars
// and writes them. It returns the symbols written and the symbols with no
// data.
func (g *DailyBarGatherer) gatherBatch(ctx context.Context, batch []string, tracker *progressTracker) (int, int, error) {
	var fetched map[string][]domain.Bar
	err := util.Retry(ctx, fetchAttempts, g.retryDelay, func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return util.Permanent(err)
			}
		}
		var err error
		fetched, err = g.fetcher.FetchDailyBars(ctx, batch, g.dates.Start, g.dates.End)
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	var all []domain.Bar
	var done []string
	for _, sym := range batch {
		var bars []domain.Bar
		for _, b := range fetched[sym] {
			if g.dates.Contains(b.Timestamp) {
				bars = append(bars, b)
			}
		}
		if len(bars) == 0 {
			continue
		}
		sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
		enriched, err := g.enrich(ctx, sym, bars)
		if err != nil {
			return 0, 0, err
		}
		all = append(all, enriched...)
		done = append(done, sym)
	}

	if len(all) > 0 {
		if err := g.store.WriteBars(ctx, string(domain.MarketUS), all); err != nil {
			return 0, 0, fmt.Errorf("writing bars: %w", err)
		}
	}
	if err := tracker.MarkDone(done); err != nil {
		g.log.Error("recording progress failed", "err", err)
	}
	return len(done), len(batch) - len(done), nil
}

// enrich attaches indicators to the fetched bars of one symbol. Stored bars
// before the range are prepended so windows that start before dates.Start
// see the same history as the original gather; only in-range bars are
// returned. Sentiment already stored for a date is carried over.
func (g *DailyBarGatherer) enrich(ctx context.Context, symbol string, fetched []domain.Bar) ([]domain.Bar, error) {
	stored, err := g.store.ReadBars(ctx, symbol, string(domain.MarketUS), time.Time{}, g.dates.End)
	if err != nil {
		return nil, fmt.Errorf("reading stored %s: %w", symbol, err)
	}

	var prior []domain.Bar
	sentiment := make(map[int64]float64)
	for _, b := range stored {
		if b.Timestamp.Before(g.dates.Start) {
			prior = append(prior, b)
			continue
		}
		if v, ok := b.Indicator(domain.IndSentiment); ok {
			sentiment[b.Timestamp.UnixNano()] = v
		}
	}

	combined := make([]domain.Bar, 0, len(prior)+len(fetched))
	combined = append(combined, prior...)
	for _, b := range fetched {
		if v, ok := sentiment[b.Timestamp.UnixNano()]; ok {
			if _, has := b.Indicator(domain.IndSentiment); !has {
				ind := make(domain.Indicators, len(b.Indicators)+1)
				for k, x := range b.Indicators {
					ind[k] = x
				}
				ind[domain.IndSentiment] = v
				b.Indicators = ind
			}
		}
		combined = append(combined, b)
	}

	return indicator.Enrich(combined, g.opts)[len(prior):], nil
}
