// Package config defines the backlink indexer configuration.
package config

import (
	"fmt"
	"strings"

	infraconfig "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/config"
	infraes "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/elasticsearch"
	infragin "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/gin"
	infralogger "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/profiling"
	infraredis "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/generator"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/image"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/wordpress"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/worker"
)

// Default service configuration values.
const (
	defaultServiceName    = "backlink-indexer"
	defaultServiceVersion = "1.0.0"
	defaultHeadingRetries = 3
)

// AI providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

// Lease backends.
const (
	LeaseRedis    = "redis"
	LeasePostgres = "postgres"
	LeaseMemory   = "memory"
)

// Config holds the application configuration.
type Config struct {
	Service       ServiceConfig              `yaml:"service"`
	Server        infragin.Config            `yaml:"server"`
	Database      infraconfig.DatabaseConfig `yaml:"database"`
	Redis         infraredis.Config          `yaml:"redis"`
	Auth          AuthConfig                 `yaml:"auth"`
	Logging       infralogger.Config         `yaml:"logging"`
	AI            AIConfig                   `yaml:"ai"`
	Image         image.Config               `yaml:"image"`
	WordPress     wordpress.Config           `yaml:"wordpress"`
	Orchestrator  orchestrator.Config        `yaml:"orchestrator"`
	Lease         LeaseConfig                `yaml:"lease"`
	Worker        worker.Config              `yaml:"worker"`
	Sweeper       worker.SweeperConfig       `yaml:"sweeper"`
	Elasticsearch infraes.Config             `yaml:"elasticsearch"`
	Profiling     profiling.Config           `yaml:"profiling"`
}

// ServiceConfig holds service identity.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// AuthConfig holds authentication settings. An empty secret leaves the API open.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// AIConfig selects the chat-completion provider. An empty provider picks
// whichever one has an API key, OpenRouter first.
type AIConfig struct {
	Provider        string                     `env:"AI_PROVIDER" yaml:"provider"`
	HeadingAttempts int                        `yaml:"heading_attempts"`
	OpenRouter      generator.OpenRouterConfig `yaml:"openrouter"`
	Anthropic       generator.AnthropicConfig  `yaml:"anthropic"`
}

// LeaseConfig picks the campaign lease store.
type LeaseConfig struct {
	Backend string `env:"LEASE_BACKEND" yaml:"backend"`
}

// Load loads configuration from a YAML file, applies defaults, then env overrides.
func Load(path string) (*Config, error) {
	cfg, loadErr := infraconfig.LoadWithDefaults(path, setDefaults)
	if loadErr != nil {
		return nil, fmt.Errorf("load config: %w", loadErr)
	}
	cfg.resolve()

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := infraconfig.ValidatePort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := infraconfig.ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if err := infraconfig.ValidateOneOf("logging.format", c.Logging.Format,
		infralogger.FormatJSON, infralogger.FormatConsole); err != nil {
		return err
	}

	if c.AI.Provider != "" {
		if err := infraconfig.ValidateOneOf("ai.provider", c.AI.Provider, ProviderOpenRouter, ProviderAnthropic); err != nil {
			return err
		}
	}
	if err := infraconfig.ValidateOneOf("lease.backend", c.Lease.Backend, LeaseRedis, LeasePostgres, LeaseMemory); err != nil {
		return err
	}
	if c.Lease.Backend == LeaseRedis {
		if !c.Redis.Enabled {
			return &infraconfig.ValidationError{Field: "lease.backend", Message: "redis backend requires redis.enabled"}
		}
		if err := infraconfig.ValidateRequired("redis.address", c.Redis.Address); err != nil {
			return err
		}
	}

	if c.Orchestrator.HeartbeatInterval >= c.Orchestrator.LeaseTTL {
		return &infraconfig.ValidationError{Field: "orchestrator.heartbeat_interval", Message: "must be shorter than lease_ttl"}
	}
	if err := c.validateEndpoints(); err != nil {
		return err
	}
	return infraconfig.ValidateRequired("sweeper.schedule", c.Sweeper.Schedule)
}

func (c *Config) validateEndpoints() error {
	if err := infraconfig.ValidateURL("image.base_url", c.Image.BaseURL); err != nil {
		return err
	}
	if err := infraconfig.ValidateURL("ai.openrouter.base_url", c.AI.OpenRouter.BaseURL); err != nil {
		return err
	}
	if c.AI.Anthropic.BaseURL != "" {
		return infraconfig.ValidateURL("ai.anthropic.base_url", c.AI.Anthropic.BaseURL)
	}
	return nil
}

// resolve fills the choices that depend on environment overrides.
func (c *Config) resolve() {
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	if c.AI.Provider == "" {
		switch {
		case c.AI.OpenRouter.APIKey != "":
			c.AI.Provider = ProviderOpenRouter
		case c.AI.Anthropic.APIKey != "":
			c.AI.Provider = ProviderAnthropic
		}
	}

	c.Lease.Backend = strings.ToLower(strings.TrimSpace(c.Lease.Backend))
	if c.Lease.Backend == "" {
		if c.Redis.Enabled {
			c.Lease.Backend = LeaseRedis
		} else {
			c.Lease.Backend = LeasePostgres
		}
	}
}

// setDefaults applies default values to all configuration sections.
func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = defaultServiceName
	}
	if cfg.Service.Version == "" {
		cfg.Service.Version = defaultServiceVersion
	}
	if cfg.AI.HeadingAttempts == 0 {
		cfg.AI.HeadingAttempts = defaultHeadingRetries
	}

	cfg.Server.SetDefaults()
	cfg.Database.SetDefaults()
	cfg.Redis.SetDefaults()
	cfg.Logging.SetDefaults()
	cfg.AI.OpenRouter.SetDefaults()
	cfg.AI.Anthropic.SetDefaults()
	cfg.Image.SetDefaults()
	cfg.Orchestrator.SetDefaults()
	cfg.Worker.SetDefaults()
	cfg.Sweeper.SetDefaults()
	cfg.Elasticsearch.SetDefaults()
	cfg.Profiling.SetDefaults()
}
