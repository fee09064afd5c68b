package lease_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/lease"
)

func newRedisLocker(t *testing.T) (*lease.RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lease.NewRedisLocker(client), mr
}

func TestRedisLocker_Exclusive(t *testing.T) {
	locker, _ := newRedisLocker(t)
	ctx := context.Background()

	l, err := locker.Acquire(ctx, "camp-1", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "camp-1", time.Minute)
	require.ErrorIs(t, err, domain.ErrLeaseHeld)

	held, err := locker.Held(ctx, "camp-1")
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, locker.Release(ctx, l))
	held, err = locker.Held(ctx, "camp-1")
	require.NoError(t, err)
	assert.False(t, held)

	_, err = locker.Acquire(ctx, "camp-1", time.Minute)
	require.NoError(t, err)
}

func TestRedisLocker_ExpiryMakesLeaseAcquirable(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "camp-1", 30*time.Minute)
	require.NoError(t, err)

	mr.FastForward(31 * time.Minute)

	fresh, err := locker.Acquire(ctx, "camp-1", 30*time.Minute)
	require.NoError(t, err)

	// The stale holder must not be able to touch the new lease.
	require.ErrorIs(t, locker.Extend(ctx, stale), lease.ErrLost)
	require.NoError(t, locker.Release(ctx, stale))
	held, err := locker.Held(ctx, "camp-1")
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, locker.Extend(ctx, fresh))
	assert.Greater(t, mr.TTL(lease.Key("camp-1")), 29*time.Minute)
}
