package util

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Retry returns the wrapped error
// as soon as fn returns it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn up to maxAttempts times, doubling the delay after each
// failure starting from baseDelay. It stops early on success, on a Permanent
// error, or when ctx is done.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	delay := baseDelay
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, err)
}
