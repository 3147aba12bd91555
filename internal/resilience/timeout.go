package resilience

import (
	"context"
	"errors"
	"time"
)

// WithTimeout runs fn with both a deadline-derived context and a watchdog.
// When the limit elapses it returns *TimeoutError and abandons fn: the
// goroutine running it is left to finish on its own. Context-aware work
// observes the deadline and stops; anything else keeps running in the
// background, which callers must tolerate.
func WithTimeout[T any](ctx context.Context, limit time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	tctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	type outcome struct {
		data T
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		data, err := fn(tctx)
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil &&
			errors.Is(tctx.Err(), context.DeadlineExceeded) &&
			errors.Is(out.err, context.DeadlineExceeded) {
			// fn observed the guard deadline and raced the watchdog.
			// Normalize so attempt timeouts always classify the same way.
			var zero T
			return zero, &TimeoutError{Op: op, Limit: limit}
		}
		return out.data, out.err
	case <-tctx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			// The caller's context ended first; report that instead of
			// a guard timeout.
			return zero, err
		}
		return zero, &TimeoutError{Op: op, Limit: limit}
	}
}
