package logger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
)

func TestFromContext_ReturnsStoredLogger(t *testing.T) {
	t.Parallel()

	l, err := logger.New(logger.Config{Level: "debug", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)

	ctx := logger.WithContext(context.Background(), l)
	assert.Same(t, l, logger.FromContext(ctx))
}

func TestFromContext_FallsBackWhenMissing(t *testing.T) {
	t.Parallel()

	got := logger.FromContext(context.Background())
	require.NotNil(t, got)

	// Must be usable without panicking.
	got.Warn("fallback in use", logger.CampaignID("c-1"))
}

func TestNewNop_WithReturnsUsableLogger(t *testing.T) {
	t.Parallel()

	l := logger.NewNop().With(logger.String("k", "v"))
	l.Info("ignored")
	assert.NoError(t, l.Sync())
}
