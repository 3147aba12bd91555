package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/Leozerbib/gile-back-sub001/internal/observability"
)

const (
	idempotencyKeyPrefix  = "gile:indexer:event:"
	defaultIdempotencyTTL = 24 * time.Hour
)

// RedisSetter is the slice of go-redis the guard needs.
type RedisSetter interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// IdempotencyGuard drops re-delivered events by claiming their id in Redis
// with SET NX EX. Redis sits behind a circuit breaker and the guard fails
// open: when the dedupe store is unreachable events are processed anyway,
// since reindexing twice is harmless and stalling the pipeline is not.
type IdempotencyGuard struct {
	client  RedisSetter
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

// NewIdempotencyGuard creates a guard. A nil client disables deduplication.
func NewIdempotencyGuard(client RedisSetter, ttl time.Duration, logger observability.Logger) *IdempotencyGuard {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	logger = logger.WithPrefix("idempotency")
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "redis-idempotency",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("idempotency breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	return &IdempotencyGuard{client: client, ttl: ttl, breaker: breaker, logger: logger}
}

// FirstDelivery reports whether this event id has not been seen within the
// TTL window, claiming it as a side effect.
func (g *IdempotencyGuard) FirstDelivery(ctx context.Context, eventID string) bool {
	if g.client == nil {
		return true
	}

	fresh, err := g.breaker.Execute(func() (interface{}, error) {
		return g.client.SetNX(ctx, idempotencyKeyPrefix+eventID, 1, g.ttl).Result()
	})
	if err != nil {
		g.logger.Warn("idempotency check unavailable, processing anyway", map[string]interface{}{
			"event_id": eventID,
			"error":    err.Error(),
		})
		return true
	}
	return fresh.(bool)
}
