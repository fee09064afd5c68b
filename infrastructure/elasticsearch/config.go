package elasticsearch

import (
	"time"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/retry"
)

// Config is the Elasticsearch block. An empty URL disables the history index.
type Config struct {
	URL                string        `env:"ELASTICSEARCH_URL"      yaml:"url"`
	Username           string        `env:"ELASTICSEARCH_USERNAME" yaml:"username"`
	Password           string        `env:"ELASTICSEARCH_PASSWORD" yaml:"password"`
	APIKey             string        `env:"ELASTICSEARCH_API_KEY"  yaml:"api_key"`
	HistoryIndex       string        `env:"ELASTICSEARCH_HISTORY_INDEX" yaml:"history_index"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	MaxRetries         int           `yaml:"max_retries"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`

	// Connect controls the startup ping loop. Nil means five attempts from 2s.
	Connect *retry.Config `yaml:"-"`
}

// Enabled reports whether a cluster is configured.
func (c *Config) Enabled() bool {
	return c.URL != ""
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.HistoryIndex == "" {
		c.HistoryIndex = "backlink_index_history"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 5 * time.Second
	}
	if c.Connect == nil {
		c.Connect = &retry.Config{
			MaxAttempts:  5,
			InitialDelay: 2 * time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			IsRetryable:  func(error) bool { return true },
		}
	}
}
