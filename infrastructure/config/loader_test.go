package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/config"
)

type sample struct {
	Name    string        `env:"SAMPLE_NAME"    yaml:"name"`
	Port    int           `env:"SAMPLE_PORT"    yaml:"port"`
	Debug   bool          `env:"SAMPLE_DEBUG"   yaml:"debug"`
	Timeout time.Duration `env:"SAMPLE_TIMEOUT" yaml:"timeout"`
	Origins []string      `env:"SAMPLE_ORIGINS" yaml:"origins"`
	Nested  struct {
		Key string `env:"SAMPLE_NESTED_KEY" yaml:"key"`
	} `yaml:"nested"`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ReadsYAML(t *testing.T) {
	path := writeConfig(t, "name: indexer\nport: 8095\ntimeout: 5s\nnested:\n  key: abc\n")

	cfg, err := config.Load[sample](path)
	require.NoError(t, err)

	assert.Equal(t, "indexer", cfg.Name)
	assert.Equal(t, 8095, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "abc", cfg.Nested.Key)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "name: indexer\nport: 8095\n")
	t.Setenv("SAMPLE_PORT", "9000")
	t.Setenv("SAMPLE_DEBUG", "yes")
	t.Setenv("SAMPLE_TIMEOUT", "250ms")
	t.Setenv("SAMPLE_ORIGINS", "a.example, b.example")
	t.Setenv("SAMPLE_NESTED_KEY", "from-env")

	cfg, err := config.Load[sample](path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.Origins)
	assert.Equal(t, "from-env", cfg.Nested.Key)
}

func TestLoad_MissingFileUsesEnvOnly(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "env-only")

	cfg, err := config.Load[sample](filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, "env-only", cfg.Name)
}

func TestLoadWithDefaults_EnvStillWins(t *testing.T) {
	path := writeConfig(t, "name: indexer\n")
	t.Setenv("SAMPLE_PORT", "7000")

	cfg, err := config.LoadWithDefaults(path, func(s *sample) {
		s.Port = 1234
	})
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "name: [unterminated\n")

	_, err := config.Load[sample](path)
	require.Error(t, err)
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, "config.yml", config.GetConfigPath("config.yml"))

	t.Setenv("CONFIG_PATH", "/etc/indexer.yml")
	assert.Equal(t, "/etc/indexer.yml", config.GetConfigPath("config.yml"))
}

func TestValidatePort(t *testing.T) {
	require.NoError(t, config.ValidatePort("server.port", 8095))

	err := config.ValidatePort("server.port", 0)
	var vErr *config.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "server.port", vErr.Field)
}

func TestValidateOneOf(t *testing.T) {
	require.NoError(t, config.ValidateOneOf("lease.backend", "redis", "redis", "postgres"))

	err := config.ValidateOneOf("lease.backend", "etcd", "redis", "postgres")
	var vErr *config.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "lease.backend: must be one of: redis, postgres", vErr.Error())
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		raw   string
		valid bool
	}{
		{raw: "https://image.pollinations.ai", valid: true},
		{raw: "http://localhost:8080/v1", valid: true},
		{raw: "image.pollinations.ai", valid: false},
		{raw: "ftp://files.example", valid: false},
		{raw: "", valid: false},
	}

	for _, tt := range tests {
		err := config.ValidateURL("image.base_url", tt.raw)
		if tt.valid {
			assert.NoError(t, err, tt.raw)
			continue
		}
		var vErr *config.ValidationError
		require.ErrorAs(t, err, &vErr, tt.raw)
		assert.Equal(t, "image.base_url", vErr.Field)
	}
}
