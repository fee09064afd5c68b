package lease_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/lease"
)

// unreachableLocker hands out leases but every extend fails as if the
// backend were down.
type unreachableLocker struct {
	*lease.MemoryLocker
}

func (unreachableLocker) Extend(context.Context, *lease.Lease) error {
	return errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
}

func TestKeep_KeepsLeaseAlive(t *testing.T) {
	locker := lease.NewMemoryLocker()
	ctx := context.Background()

	l, err := locker.Acquire(ctx, "camp-1", 40*time.Millisecond)
	require.NoError(t, err)

	k := lease.Keep(ctx, locker, l, 10*time.Millisecond, logger.NewNop())
	time.Sleep(100 * time.Millisecond)

	held, err := locker.Held(ctx, "camp-1")
	require.NoError(t, err)
	assert.True(t, held)
	require.NoError(t, k.Confirm(ctx))
	require.NoError(t, k.Context().Err())

	k.Stop()
	require.ErrorIs(t, k.Context().Err(), context.Canceled)
	assert.NotErrorIs(t, context.Cause(k.Context()), lease.ErrLost)
	require.NoError(t, locker.Release(ctx, l))
}

func TestKeep_ReleasedLeaseCancelsContext(t *testing.T) {
	locker := lease.NewMemoryLocker()
	ctx := context.Background()

	l, err := locker.Acquire(ctx, "camp-1", time.Minute)
	require.NoError(t, err)
	k := lease.Keep(ctx, locker, l, 5*time.Millisecond, logger.NewNop())
	defer k.Stop()

	require.NoError(t, locker.Release(ctx, l))

	select {
	case <-k.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("lease context was not cancelled")
	}
	require.ErrorIs(t, context.Cause(k.Context()), lease.ErrLost)
	require.ErrorIs(t, k.Confirm(ctx), lease.ErrLost)
}

func TestKeep_FailingExtendsExpireAfterTTL(t *testing.T) {
	locker := unreachableLocker{lease.NewMemoryLocker()}
	ctx := context.Background()

	l, err := locker.Acquire(ctx, "camp-1", 50*time.Millisecond)
	require.NoError(t, err)
	k := lease.Keep(ctx, locker, l, 10*time.Millisecond, logger.NewNop())
	defer k.Stop()

	require.NoError(t, k.Confirm(ctx))

	select {
	case <-k.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("lease context was not cancelled")
	}
	require.ErrorIs(t, context.Cause(k.Context()), lease.ErrLost)
	err = k.Confirm(ctx)
	require.ErrorIs(t, err, lease.ErrLost)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKeep_ConfirmWithoutHeartbeat(t *testing.T) {
	locker := unreachableLocker{lease.NewMemoryLocker()}
	ctx := context.Background()

	l, err := locker.Acquire(ctx, "camp-1", 20*time.Millisecond)
	require.NoError(t, err)
	k := lease.Keep(ctx, locker, l, 0, logger.NewNop())
	defer k.Stop()

	require.NoError(t, k.Confirm(ctx))
	time.Sleep(30 * time.Millisecond)
	require.ErrorIs(t, k.Confirm(ctx), lease.ErrLost)
	require.ErrorIs(t, context.Cause(k.Context()), lease.ErrLost)
}
