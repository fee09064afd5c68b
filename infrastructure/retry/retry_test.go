package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/retry"
)

func fastConfig(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		IsRetryable:  func(error) bool { return true },
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retry.Retry(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	boom := errors.New("still failing")
	calls := 0
	err := retry.Retry(context.Background(), fastConfig(2), func() error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	boom := errors.New("bad request")
	calls := 0
	err := retry.Retry(context.Background(), fastConfig(5), func() error {
		calls++
		return retry.Permanent(boom)
	})

	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.Equal(t, 1, calls)
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Retry(ctx, fastConfig(3), func() error { return nil })
	require.ErrorIs(t, err, retry.ErrContextCancelled)
}

func TestDefaultIsRetryable(t *testing.T) {
	assert.True(t, retry.DefaultIsRetryable(errors.New("dial tcp: i/o timeout")))
	assert.True(t, retry.DefaultIsRetryable(errors.New("read: connection reset by peer")))
	assert.False(t, retry.DefaultIsRetryable(errors.New("401 unauthorized")))
	assert.False(t, retry.DefaultIsRetryable(nil))
}
