package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	infralogger "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
)

const defaultSweepSchedule = "*/5 * * * *"

// SweeperConfig is the sweeper block.
type SweeperConfig struct {
	Enabled  bool   `env:"SWEEPER_ENABLED"  yaml:"enabled"`
	Schedule string `env:"SWEEPER_SCHEDULE" yaml:"schedule"`
}

// SetDefaults runs the sweep every five minutes.
func (c *SweeperConfig) SetDefaults() {
	if c.Schedule == "" {
		c.Schedule = defaultSweepSchedule
	}
}

// Sweeper resets stuck campaigns.
type Sweeper interface {
	SweepStuck(ctx context.Context) ([]string, error)
}

// StuckSweeper runs Sweeper on a cron schedule.
type StuckSweeper struct {
	sweeper Sweeper
	cron    *cron.Cron
	logger  infralogger.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewStuckSweeper validates the schedule. Five-field expressions and
// descriptors such as @every 1m are accepted.
func NewStuckSweeper(sweeper Sweeper, cfg SweeperConfig, log infralogger.Logger) (*StuckSweeper, error) {
	cfg.SetDefaults()
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	s := &StuckSweeper{
		sweeper: sweeper,
		cron:    c,
		logger:  log.With(infralogger.String("component", "stuck_sweeper")),
	}
	if _, err := c.AddFunc(cfg.Schedule, s.tick); err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start schedules sweeps that run under ctx.
func (s *StuckSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("Stuck sweeper started")
}

// Stop cancels a running sweep and waits for it.
func (s *StuckSweeper) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.logger.Info("Stuck sweeper stopped")
}

// RunOnce sweeps immediately.
func (s *StuckSweeper) RunOnce(ctx context.Context) ([]string, error) {
	reset, err := s.sweeper.SweepStuck(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep stuck campaigns: %w", err)
	}
	return reset, nil
}

func (s *StuckSweeper) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Stuck sweep failed", infralogger.Error(err))
	}
}
