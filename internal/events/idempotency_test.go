package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) (*IdempotencyGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("Failed to close redis client: %v", err)
		}
	})
	return NewIdempotencyGuard(client, time.Hour, nil), mr
}

func TestFirstDeliveryClaimsEvent(t *testing.T) {
	guard, mr := newTestGuard(t)
	ctx := context.Background()

	assert.True(t, guard.FirstDelivery(ctx, "ev-1"))
	assert.False(t, guard.FirstDelivery(ctx, "ev-1"), "second delivery must be dropped")
	assert.True(t, guard.FirstDelivery(ctx, "ev-2"), "distinct events are independent")

	ttl := mr.TTL(idempotencyKeyPrefix + "ev-1")
	assert.Equal(t, time.Hour, ttl)
}

func TestFirstDeliveryAfterTTLExpiry(t *testing.T) {
	guard, mr := newTestGuard(t)
	ctx := context.Background()

	require.True(t, guard.FirstDelivery(ctx, "ev-1"))
	mr.FastForward(2 * time.Hour)
	assert.True(t, guard.FirstDelivery(ctx, "ev-1"), "claim expires with the TTL")
}

func TestFirstDeliveryFailsOpenWhenRedisDown(t *testing.T) {
	guard, mr := newTestGuard(t)
	mr.Close()

	// Every call fails open, including after the breaker has tripped.
	for i := 0; i < 8; i++ {
		assert.True(t, guard.FirstDelivery(context.Background(), "ev-1"))
	}
}

func TestFirstDeliveryNilClientDisablesDedupe(t *testing.T) {
	guard := NewIdempotencyGuard(nil, 0, nil)

	assert.True(t, guard.FirstDelivery(context.Background(), "ev-1"))
	assert.True(t, guard.FirstDelivery(context.Background(), "ev-1"))
}
