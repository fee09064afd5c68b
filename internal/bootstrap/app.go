// Package bootstrap assembles the backlink indexer from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	infralogger "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/profiling"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/config"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/database"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/events"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/generator"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/image"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/importer"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/metrics"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/search"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/wordpress"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/worker"
)

// App owns every long-lived resource. Close releases them in reverse order.
type App struct {
	Config       *config.Config
	Logger       infralogger.Logger
	DB           *sqlx.DB
	Redis        *redis.Client
	Elastic      *es.Client
	Repository   *database.Repository
	Orchestrator *orchestrator.Orchestrator
	Importer     *importer.Importer
	History      *search.HistoryIndex
	Metrics      *metrics.Metrics
	Registry     *prometheus.Registry

	profiler *profiling.Profiler
}

// New loads configuration and connects every dependency.
func New(ctx context.Context, configPath string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, err := CreateLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	app := &App{Config: cfg, Logger: log}
	if err = app.connect(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err = app.wire(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) connect(ctx context.Context) error {
	profiler, err := profiling.Start(a.Config.Profiling, a.Config.Service.Name, a.Config.Service.Version, a.Logger)
	if err != nil {
		a.Logger.Warn("Profiling disabled", infralogger.Error(err))
	}
	a.profiler = profiler

	if a.DB, err = SetupDatabase(ctx, a.Config); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	a.Logger.Info("Database connection established",
		infralogger.String("host", a.Config.Database.Host),
		infralogger.String("database", a.Config.Database.Database),
	)

	if a.Redis, err = SetupRedis(ctx, a.Config, a.Logger); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	a.Elastic, a.History = SetupHistoryIndex(ctx, a.Config, a.Logger)
	return nil
}

func (a *App) wire() error {
	cfg := a.Config

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Registry = reg
	a.Metrics = metrics.New(reg)

	a.Repository = database.NewRepository(a.DB)
	completer := NewCompleter(cfg, a.Logger)

	deps := orchestrator.Deps{
		Store:      a.Repository,
		Headings:   generator.NewHeadingGenerator(completer, a.Repository, cfg.AI.HeadingAttempts, a.Logger),
		Content:    generator.NewContentGenerator(completer, a.Logger),
		Images:     image.NewPipeline(cfg.Image, completer, a.Logger),
		Publishers: orchestrator.WordPressPublishers(wordpress.NewFactory(cfg.WordPress, a.Logger)),
		Metrics:    a.Metrics,
	}
	if a.Redis != nil {
		deps.Events = events.NewRedisPublisher(a.Redis, a.Logger)
	}
	if a.History != nil {
		deps.History = a.History
	}

	locker, err := NewLocker(cfg, a.DB, a.Redis)
	if err != nil {
		return fmt.Errorf("lease: %w", err)
	}
	deps.Locker = locker
	a.Logger.Info("Campaign lease configured", infralogger.String("backend", cfg.Lease.Backend))

	a.Orchestrator = orchestrator.New(cfg.Orchestrator, deps, a.Logger)
	a.Importer = importer.New(a.Repository, a.Logger)
	return nil
}

// NewWorker builds the campaign worker.
func (a *App) NewWorker() *worker.CampaignWorker {
	return worker.NewCampaignWorker(a.Orchestrator, a.Repository, a.Config.Worker, a.Metrics, a.Logger)
}

// NewSweeper builds the cron-driven stuck campaign sweeper.
func (a *App) NewSweeper() (*worker.StuckSweeper, error) {
	return worker.NewStuckSweeper(a.Orchestrator, a.Config.Sweeper, a.Logger)
}

// Close releases connections. It is safe on a partially built App.
func (a *App) Close() {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	errs = append(errs, a.profiler.Stop())
	if err := errors.Join(errs...); err != nil {
		a.Logger.Error("Failed to close resources", infralogger.Error(err))
	}
	_ = a.Logger.Sync()
}
