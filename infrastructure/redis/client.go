// Package redis opens the go-redis client used for campaign leases and events.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/retry"
)

// Config is the Redis connection block.
type Config struct {
	Enabled      bool          `env:"REDIS_ENABLED"  yaml:"enabled"`
	Address      string        `env:"REDIS_ADDRESS"  yaml:"address"`
	Password     string        `env:"REDIS_PASSWORD" yaml:"password"`
	DB           int           `env:"REDIS_DB"       yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ConnectAttempts bounds the startup ping loop.
	ConnectAttempts int `yaml:"connect_attempts"`
}

// SetDefaults fills the pool size and short per-command timeouts.
func (c *Config) SetDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.ConnectAttempts == 0 {
		c.ConnectAttempts = 3
	}
}

// ErrEmptyAddress is returned when no address is configured.
var ErrEmptyAddress = errors.New("redis address is required")

const (
	pingTimeout  = 5 * time.Second
	connectDelay = 500 * time.Millisecond
)

// NewClient connects and pings until Redis answers or ConnectAttempts run
// out. The client is closed again when every ping fails.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	cfg.SetDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	err := retry.Retry(ctx, retry.Config{
		MaxAttempts:  cfg.ConnectAttempts,
		InitialDelay: connectDelay,
		MaxDelay:     4 * connectDelay,
		Multiplier:   2.0,
		IsRetryable:  func(error) bool { return true },
	}, func() error {
		return Ping(ctx, client)
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Address, err)
	}

	return client, nil
}

// Ping checks the server answers within five seconds. It backs the /health check.
func Ping(ctx context.Context, client *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
