package resilience

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound provider calls.
type RateLimiter interface {
	// Wait blocks until the limiter admits an event or the context ends.
	Wait(ctx context.Context) error
	// Allow reports whether an event may proceed right now.
	Allow() bool
}

type tokenBucketLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter builds a token-bucket limiter from a requests-per-minute
// budget. A non-positive budget returns an unlimited limiter.
func NewRateLimiter(perMinute, burst int) RateLimiter {
	if perMinute <= 0 {
		return noLimit{}
	}
	if burst <= 0 {
		burst = perMinute / 10
		if burst < 1 {
			burst = 1
		}
	}
	return &tokenBucketLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
	}
}

func (l *tokenBucketLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

func (l *tokenBucketLimiter) Allow() bool {
	return l.limiter.Allow()
}

type noLimit struct{}

func (noLimit) Wait(ctx context.Context) error { return nil }
func (noLimit) Allow() bool                    { return true }
