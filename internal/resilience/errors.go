// Package resilience provides the fault-handling primitives shared by the
// indexing pipeline: a keyed circuit breaker, retry with exponential
// backoff, a timeout guard, and a token-bucket rate limiter.
package resilience

import (
	"errors"
	"fmt"
	"time"
)

// CircuitOpenError is returned when a call is rejected because the breaker
// for its key is open. RetryAfter is the remaining wait before the next
// probe is admitted.
type CircuitOpenError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s, retry in %s", e.Key, e.RetryAfter.Round(time.Millisecond))
}

// IsCircuitOpen reports whether err is a circuit-open rejection.
func IsCircuitOpen(err error) bool {
	var coe *CircuitOpenError
	return errors.As(err, &coe)
}

// TimeoutError is returned by WithTimeout when the operation did not finish
// within its limit.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s timed out after %s", e.Op, e.Limit)
}

// IsTimeout reports whether err is a guard timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
