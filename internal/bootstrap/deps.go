package bootstrap

import (
	"context"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	infraes "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/elasticsearch"
	infralogger "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/config"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/database"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/generator"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/lease"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/search"
)

// SetupDatabase opens the Postgres pool.
func SetupDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	return db, nil
}

// SetupRedis returns nil when Redis is disabled.
func SetupRedis(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		log.Info("Redis disabled, campaign events will not be published")
		return nil, nil //nolint:nilnil // disabled is not an error
	}
	client, err := infraredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	log.Info("Redis connection established", infralogger.String("address", cfg.Redis.Address))
	return client, nil
}

// SetupHistoryIndex returns nil when Elasticsearch is not configured. An
// unreachable cluster is logged and skipped so the indexer still starts.
func SetupHistoryIndex(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*es.Client, *search.HistoryIndex) {
	if !cfg.Elasticsearch.Enabled() {
		return nil, nil
	}
	client, err := infraes.NewClient(ctx, cfg.Elasticsearch, log)
	if err != nil {
		log.Warn("Elasticsearch unavailable, history search disabled", infralogger.Error(err))
		return nil, nil
	}
	index := search.NewHistoryIndex(client, cfg.Elasticsearch.HistoryIndex, log)
	if err = index.EnsureIndex(ctx); err != nil {
		log.Warn("Failed to create history index", infralogger.Error(err))
	}
	return client, index
}

// NewLocker builds the configured lease backend.
func NewLocker(cfg *config.Config, db *sqlx.DB, rdb *redis.Client) (lease.Locker, error) {
	switch cfg.Lease.Backend {
	case config.LeaseRedis:
		if rdb == nil {
			return nil, fmt.Errorf("lease backend %q requires redis", cfg.Lease.Backend)
		}
		return lease.NewRedisLocker(rdb), nil
	case config.LeasePostgres:
		return lease.NewPostgresLocker(db), nil
	case config.LeaseMemory:
		return lease.NewMemoryLocker(), nil
	default:
		return nil, fmt.Errorf("unknown lease backend %q", cfg.Lease.Backend)
	}
}

// NewCompleter returns the configured provider, or nil when none has a key.
// A nil completer makes every heading and body come from the templates.
func NewCompleter(cfg *config.Config, log infralogger.Logger) generator.Completer {
	switch cfg.AI.Provider {
	case config.ProviderOpenRouter:
		log.Info("Using OpenRouter", infralogger.String("model", cfg.AI.OpenRouter.Model))
		return generator.NewOpenRouterCompleter(cfg.AI.OpenRouter, log)
	case config.ProviderAnthropic:
		log.Info("Using Anthropic", infralogger.String("model", cfg.AI.Anthropic.Model))
		return generator.NewAnthropicCompleter(cfg.AI.Anthropic)
	default:
		log.Warn("No AI provider configured, headings and content will use templates")
		return nil
	}
}
