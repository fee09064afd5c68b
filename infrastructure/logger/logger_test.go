package logger_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
)

func writeOneLine(t *testing.T, cfg logger.Config) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.log")
	cfg.OutputPaths = []string{path}

	l, err := logger.New(cfg)
	require.NoError(t, err)
	l.Info("Batch indexed", logger.CampaignID("c-1"), logger.Int("remaining", 3))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

func TestNew_JSONByDefault(t *testing.T) {
	t.Parallel()

	line := writeOneLine(t, logger.Config{})

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "Batch indexed", entry["msg"])
	assert.Equal(t, "c-1", entry["campaign_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestNew_ConsoleFormat(t *testing.T) {
	t.Parallel()

	line := writeOneLine(t, logger.Config{Format: logger.FormatConsole})

	assert.False(t, json.Valid([]byte(line)))
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "Batch indexed")
	assert.Contains(t, line, `"campaign_id": "c-1"`)
}

func TestNew_DebugFilteredAtInfo(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.log")
	l, err := logger.New(logger.Config{Level: "info", OutputPaths: []string{path}})
	require.NoError(t, err)
	l.Debug("hidden")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(data)))
}
