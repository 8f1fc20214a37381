// Package store persists price bars for replay and the fills and results
// of simulation runs.
package store

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"quantfolio/internal/domain"
)

// BarStore persists and retrieves daily bars with their indicators.
type BarStore interface {
	// WriteBars persists a batch of bars under market.
	WriteBars(ctx context.Context, market string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// loadConcurrency bounds parallel symbol reads in LoadSeries.
const loadConcurrency = 8

// LoadSeries reads every symbol (all stored symbols when symbols is empty)
// within [start, end] into a Series. Symbols without bars are omitted.
func LoadSeries(ctx context.Context, bs BarStore, market string, symbols []string, start, end time.Time) (domain.Series, error) {
	if len(symbols) == 0 {
		var err error
		symbols, err = bs.ListSymbols(ctx, market)
		if err != nil {
			return nil, fmt.Errorf("listing %s symbols: %w", market, err)
		}
	}

	results := make([][]domain.Bar, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			bars, err := bs.ReadBars(gctx, sym, market, start, end)
			if err != nil {
				return fmt.Errorf("reading %s: %w", sym, err)
			}
			results[i] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	series := make(domain.Series, len(symbols))
	for i, sym := range symbols {
		if len(results[i]) > 0 {
			series[sym] = results[i]
		}
	}
	return series, nil
}
