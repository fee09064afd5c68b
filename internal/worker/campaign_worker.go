// Package worker drives queued campaigns to completion and sweeps stuck ones.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	infralogger "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/metrics"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/orchestrator"
)

const (
	defaultPollInterval      = 30 * time.Second
	defaultConcurrency       = 2
	defaultMaxBatchesPerTick = 20
	defaultQueueLimit        = 50
)

// Config is the worker block.
type Config struct {
	Enabled           bool          `env:"WORKER_ENABLED" yaml:"enabled"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	Concurrency       int           `yaml:"concurrency"`
	MaxBatchesPerTick int           `yaml:"max_batches_per_tick"`
	QueueLimit        int           `yaml:"queue_limit"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.MaxBatchesPerTick <= 0 {
		c.MaxBatchesPerTick = defaultMaxBatchesPerTick
	}
	if c.QueueLimit <= 0 {
		c.QueueLimit = defaultQueueLimit
	}
}

// BatchProcessor runs one batch.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, campaignID string) (*orchestrator.Result, error)
}

// CampaignLister finds campaigns with work.
type CampaignLister interface {
	ListCampaignsByStatus(ctx context.Context, statuses []domain.CampaignStatus, limit int) ([]domain.Campaign, error)
}

// CampaignWorker polls queued and running campaigns and calls ProcessBatch
// until each reports nothing remaining or the per-tick budget runs out.
type CampaignWorker struct {
	processor BatchProcessor
	lister    CampaignLister
	cfg       Config
	metrics   *metrics.Metrics
	logger    infralogger.Logger
	tracer    trace.Tracer

	mu       sync.Mutex
	started  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewCampaignWorker creates a worker. m may be nil.
func NewCampaignWorker(
	processor BatchProcessor,
	lister CampaignLister,
	cfg Config,
	m *metrics.Metrics,
	log infralogger.Logger,
) *CampaignWorker {
	cfg.SetDefaults()
	return &CampaignWorker{
		processor: processor,
		lister:    lister,
		cfg:       cfg,
		metrics:   m,
		logger:    log.With(infralogger.String("component", "campaign_worker")),
		tracer:    otel.Tracer("campaign-worker"),
	}
}

// Start begins the polling loop. It returns immediately.
func (w *CampaignWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.stopChan = make(chan struct{})
	stop := w.stopChan
	w.mu.Unlock()

	w.wg.Go(func() { w.run(ctx, stop) })

	w.logger.Info("Campaign worker started",
		infralogger.Duration("poll_interval", w.cfg.PollInterval),
		infralogger.Int("concurrency", w.cfg.Concurrency),
		infralogger.Int("max_batches_per_tick", w.cfg.MaxBatchesPerTick),
	)
}

// Stop waits for the in-flight tick to finish.
func (w *CampaignWorker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	close(w.stopChan)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("Campaign worker stopped")
}

func (w *CampaignWorker) run(ctx context.Context, stop <-chan struct{}) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick processes every campaign with work once and returns the number of
// batches it published.
func (w *CampaignWorker) Tick(ctx context.Context) int {
	ctx, span := w.tracer.Start(ctx, "worker.tick")
	defer span.End()

	campaigns, err := w.lister.ListCampaignsByStatus(ctx,
		[]domain.CampaignStatus{domain.CampaignQueued, domain.CampaignRunning}, w.cfg.QueueLimit)
	if err != nil {
		w.logger.Error("Failed to list campaigns", infralogger.Error(err))
		w.metrics.WorkerTick("error", 0)
		return 0
	}
	span.SetAttributes(attribute.Int("campaigns", len(campaigns)))
	if len(campaigns) == 0 {
		w.metrics.WorkerTick("idle", 0)
		return 0
	}

	var (
		mu      sync.Mutex
		batches int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for i := range campaigns {
		id := campaigns[i].ID
		g.Go(func() error {
			n := w.drive(gctx, id)
			mu.Lock()
			batches += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	w.metrics.WorkerTick("ok", len(campaigns))
	span.SetAttributes(attribute.Int("batches", batches))
	return batches
}

// drive runs batches for one campaign until it is done, fails, or the budget is spent.
func (w *CampaignWorker) drive(ctx context.Context, campaignID string) int {
	log := w.logger.With(infralogger.CampaignID(campaignID))
	batches := 0
	for batches < w.cfg.MaxBatchesPerTick {
		if ctx.Err() != nil {
			return batches
		}
		result, err := w.processor.ProcessBatch(ctx, campaignID)
		if err != nil {
			var oe *orchestrator.Error
			if errors.As(err, &oe) && oe.Kind == orchestrator.KindConflict {
				log.Debug("Campaign busy, skipping")
			} else {
				log.Warn("Batch failed", infralogger.Error(err))
			}
			return batches
		}
		if result.Indexed > 0 {
			batches++
		}
		if result.Remaining == 0 || result.Status == domain.CampaignCompleted {
			return batches
		}
	}
	log.Info("Batch budget reached, continuing next tick", infralogger.Int("batches", batches))
	return batches
}
