package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraconfig "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/config"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
}

func TestLoad_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, "backlink-indexer", cfg.Service.Name)
	assert.Equal(t, 8095, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Orchestrator.BatchSize)
	assert.Equal(t, 30*time.Minute, cfg.Orchestrator.LeaseTTL)
	assert.Equal(t, 30*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, "*/5 * * * *", cfg.Sweeper.Schedule)
	assert.Equal(t, 1200, cfg.Image.Width)
	assert.Equal(t, "openai/gpt-oss-20b:free", cfg.AI.OpenRouter.Model)
	assert.Equal(t, config.LeasePostgres, cfg.Lease.Backend)
	assert.Empty(t, cfg.AI.Provider)
}

func TestLoad_FileAndEnv(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, `
server:
  port: 9000
redis:
  enabled: true
  address: localhost:6379
orchestrator:
  batch_size: 3
worker:
  enabled: true
  concurrency: 4
`)
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("SWEEPER_SCHEDULE", "@every 2m")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Orchestrator.BatchSize)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.True(t, cfg.Worker.Enabled)
	assert.Equal(t, config.LeaseRedis, cfg.Lease.Backend)
	assert.Equal(t, config.ProviderOpenRouter, cfg.AI.Provider)
	assert.Equal(t, "@every 2m", cfg.Sweeper.Schedule)
}

func TestLoad_AnthropicSelectedByKey(t *testing.T) {
	isolateEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "key")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, config.ProviderAnthropic, cfg.AI.Provider)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "provider", body: "ai:\n  provider: gemini\n", field: "ai.provider"},
		{name: "lease backend", body: "lease:\n  backend: etcd\n", field: "lease.backend"},
		{name: "redis lease without redis", body: "lease:\n  backend: redis\n", field: "lease.backend"},
		{name: "log level", body: "logging:\n  level: loud\n", field: "logging.level"},
		{name: "log format", body: "logging:\n  format: xml\n", field: "logging.format"},
		{name: "image url", body: "image:\n  base_url: image.pollinations.ai\n", field: "image.base_url"},
		{name: "anthropic url", body: "ai:\n  anthropic:\n    base_url: \"ftp://x\"\n", field: "ai.anthropic.base_url"},
		{name: "heartbeat", body: "orchestrator:\n  lease_ttl: 1m\n  heartbeat_interval: 2m\n", field: "orchestrator.heartbeat_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			_, err := config.Load(writeConfig(t, tt.body))
			require.Error(t, err)

			var validationErr *infraconfig.ValidationError
			require.True(t, errors.As(err, &validationErr), err.Error())
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}
