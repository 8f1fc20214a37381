package util

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces calls to an external API at a per-minute budget.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows perMinute calls per minute with the given burst. A
// burst below one is treated as one.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), max(burst, 1))}
}

// Wait blocks until a call is allowed or ctx is done. It fails fast when ctx
// expires before the next slot.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}
