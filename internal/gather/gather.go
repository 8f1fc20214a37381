// Package gather defines the contract shared by market-data gatherers.
package gather

import (
	"context"
	"errors"
	"time"
)

// Gatherer fetches market data into a store.
type Gatherer interface {
	// Name identifies the gatherer in logs.
	Name() string
	// Run gathers until the work is done or ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange is an inclusive range of trading dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Validate reports a missing bound or an end before the start.
func (r DateRange) Validate() error {
	switch {
	case r.Start.IsZero() || r.End.IsZero():
		return errors.New("date range needs both start and end")
	case r.End.Before(r.Start):
		return errors.New("date range end is before start")
	}
	return nil
}

// Contains reports whether t falls within the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}
