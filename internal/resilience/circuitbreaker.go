package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/Leozerbib/gile-back-sub001/internal/observability"
)

// State is the lifecycle state of one breaker key.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int
	// ResetTimeout is how long an open circuit rejects calls before a
	// probe is admitted.
	ResetTimeout time.Duration
}

// BreakerStats is a snapshot of one key's breaker state.
type BreakerStats struct {
	Key                 string    `json:"key"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalFailures       int64     `json:"total_failures"`
	TotalSuccesses      int64     `json:"total_successes"`
	LastFailureTime     time.Time `json:"last_failure_time,omitempty"`
	NextAttemptTime     time.Time `json:"next_attempt_time,omitempty"`
}

type breakerEntry struct {
	state               State
	consecutiveFailures int
	totalFailures       int64
	totalSuccesses      int64
	lastFailureTime     time.Time
	nextAttemptTime     time.Time
	probing             bool
}

// CircuitBreaker keeps independent breaker state per key. It is injected
// into callers as a single shared component; all methods are safe for
// concurrent use.
type CircuitBreaker struct {
	cfg    BreakerConfig
	clock  Clock
	logger observability.Logger

	mu   sync.Mutex
	keys map[string]*breakerEntry
}

// NewCircuitBreaker creates a breaker component. A nil clock means the
// system clock; zero config fields fall back to 5 failures / 1 minute.
func NewCircuitBreaker(cfg BreakerConfig, logger observability.Logger, clock Clock) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &CircuitBreaker{
		cfg:    cfg,
		clock:  clock,
		logger: logger,
		keys:   make(map[string]*breakerEntry),
	}
}

// Execute runs fn under the breaker for key. While the circuit is open the
// call fails fast with *CircuitOpenError and fn is not invoked. The first
// call after the reset timeout is admitted as the probe; its outcome closes
// or re-opens the circuit.
func (cb *CircuitBreaker) Execute(ctx context.Context, key string, fn func(context.Context) error) error {
	if err := cb.admit(key); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		cb.recordFailure(key)
		return err
	}
	cb.recordSuccess(key)
	return nil
}

func (cb *CircuitBreaker) admit(key string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	e := cb.entry(key)
	now := cb.clock.Now()

	switch e.state {
	case StateClosed:
		return nil
	case StateOpen:
		if now.Before(e.nextAttemptTime) {
			return &CircuitOpenError{Key: key, RetryAfter: e.nextAttemptTime.Sub(now)}
		}
		e.state = StateHalfOpen
		e.probing = true
		cb.logger.Info("circuit breaker probing", map[string]interface{}{"key": key})
		return nil
	case StateHalfOpen:
		if e.probing {
			return &CircuitOpenError{Key: key, RetryAfter: 0}
		}
		e.probing = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) recordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	e := cb.entry(key)
	now := cb.clock.Now()
	e.lastFailureTime = now
	e.totalFailures++

	switch e.state {
	case StateClosed:
		e.consecutiveFailures++
		if e.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.open(key, e, now)
		}
	case StateHalfOpen:
		e.probing = false
		cb.open(key, e, now)
	}
}

func (cb *CircuitBreaker) recordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	e := cb.entry(key)
	e.totalSuccesses++

	switch e.state {
	case StateClosed:
		e.consecutiveFailures = 0
	case StateHalfOpen:
		e.state = StateClosed
		e.consecutiveFailures = 0
		e.probing = false
		e.nextAttemptTime = time.Time{}
		cb.logger.Info("circuit breaker closed", map[string]interface{}{"key": key})
	}
}

func (cb *CircuitBreaker) open(key string, e *breakerEntry, now time.Time) {
	e.state = StateOpen
	e.nextAttemptTime = now.Add(cb.cfg.ResetTimeout)
	cb.logger.Warn("circuit breaker opened", map[string]interface{}{
		"key":                  key,
		"consecutive_failures": e.consecutiveFailures,
		"next_attempt":         e.nextAttemptTime.Format(time.RFC3339),
	})
}

// Stats returns the snapshot for key. Unknown keys read as pristine closed
// state.
func (cb *CircuitBreaker) Stats(key string) BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	e, ok := cb.keys[key]
	if !ok {
		return BreakerStats{Key: key, State: StateClosed}
	}
	return BreakerStats{
		Key:                 key,
		State:               e.state,
		ConsecutiveFailures: e.consecutiveFailures,
		TotalFailures:       e.totalFailures,
		TotalSuccesses:      e.totalSuccesses,
		LastFailureTime:     e.lastFailureTime,
		NextAttemptTime:     e.nextAttemptTime,
	}
}

// AllStats snapshots every key seen so far.
func (cb *CircuitBreaker) AllStats() map[string]BreakerStats {
	cb.mu.Lock()
	keys := make([]string, 0, len(cb.keys))
	for k := range cb.keys {
		keys = append(keys, k)
	}
	cb.mu.Unlock()

	out := make(map[string]BreakerStats, len(keys))
	for _, k := range keys {
		out[k] = cb.Stats(k)
	}
	return out
}

// Reset restores key to pristine closed state.
func (cb *CircuitBreaker) Reset(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.keys, key)
}

func (cb *CircuitBreaker) entry(key string) *breakerEntry {
	e, ok := cb.keys[key]
	if !ok {
		e = &breakerEntry{state: StateClosed}
		cb.keys[key] = e
	}
	return e
}
