package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/Leozerbib/gile-back-sub001/internal/observability"
)

// RetryConfig describes an exponential backoff schedule.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt. The
	// operation runs at most MaxRetries+1 times.
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	// Jitter is the fraction of random spread applied around each delay.
	// Zero means the default of 0.25.
	Jitter float64
}

// RetryResult is the outcome envelope of a retried operation. It always
// reports how many attempts ran and how long the whole loop took,
// regardless of success.
type RetryResult[T any] struct {
	Success       bool
	Data          T
	Err           error
	Attempts      int
	TotalDuration time.Duration
}

// Unwrap collapses the envelope into the usual (value, error) pair.
func (r RetryResult[T]) Unwrap() (T, error) {
	if r.Success {
		return r.Data, nil
	}
	return r.Data, r.Err
}

// Delay returns the backoff before retry number attempt (1-based), before
// jitter: min(BaseDelay * Multiplier^attempt, MaxDelay).
func Delay(cfg RetryConfig, attempt int) time.Duration {
	d := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if cfg.MaxDelay > 0 && d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	return time.Duration(d)
}

func jittered(cfg RetryConfig, d time.Duration) time.Duration {
	j := cfg.Jitter
	if j == 0 {
		j = 0.25
	}
	spread := (rand.Float64()*2 - 1) * j // [-j, +j)
	return time.Duration(float64(d) * (1 + spread))
}

// Retry runs fn until it succeeds, the retry budget is exhausted, or the
// classifier reports the error as permanent. A nil classifier retries every
// error. Context cancellation during a backoff delay aborts the loop.
func Retry[T any](ctx context.Context, cfg RetryConfig, op string, fn func(context.Context) (T, error), retryable func(error) bool, logger observability.Logger) RetryResult[T] {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	start := time.Now()

	var lastErr error
	attempts := 0
	for {
		attempts++
		data, err := fn(ctx)
		if err == nil {
			return RetryResult[T]{
				Success:       true,
				Data:          data,
				Attempts:      attempts,
				TotalDuration: time.Since(start),
			}
		}
		lastErr = err

		if attempts > cfg.MaxRetries {
			break
		}
		if retryable != nil && !retryable(err) {
			logger.Debug("error is permanent, not retrying", map[string]interface{}{
				"operation": op,
				"error":     err.Error(),
			})
			break
		}

		delay := jittered(cfg, Delay(cfg, attempts))
		logger.Warn("operation failed, retrying", map[string]interface{}{
			"operation": op,
			"attempt":   attempts,
			"delay":     delay.String(),
			"error":     err.Error(),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return RetryResult[T]{
				Err:           fmt.Errorf("retry of %s aborted: %w", op, ctx.Err()),
				Attempts:      attempts,
				TotalDuration: time.Since(start),
			}
		}
	}

	return RetryResult[T]{
		Err:           lastErr,
		Attempts:      attempts,
		TotalDuration: time.Since(start),
	}
}
