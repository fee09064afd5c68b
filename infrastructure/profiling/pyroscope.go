// Package profiling starts Pyroscope continuous profiling when configured.
package profiling

import (
	"fmt"
	"os"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
)

// Config is the profiling block.
type Config struct {
	Enabled     bool   `env:"ENABLE_CONTINUOUS_PROFILING" yaml:"enabled"`
	ServerURL   string `env:"PYROSCOPE_SERVER_URL"        yaml:"server_url"`
	Environment string `env:"PYROSCOPE_ENVIRONMENT"       yaml:"environment"`
}

// SetDefaults fills the server address and environment tag.
func (c *Config) SetDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = "http://pyroscope:4040"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// Profiler wraps a running pyroscope session. A nil Profiler is valid and stops as a no-op.
type Profiler struct {
	profiler *pyroscope.Profiler
}

// Start returns (nil, nil) when profiling is disabled.
func Start(cfg Config, serviceName, version string, log logger.Logger) (*Profiler, error) {
	if !cfg.Enabled {
		return nil, nil //nolint:nilnil // disabled is not an error
	}
	cfg.SetDefaults()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	appName := "north-cloud." + serviceName
	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   cfg.ServerURL,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Tags: map[string]string{
			"environment": cfg.Environment,
			"version":     version,
			"hostname":    hostname,
			"go_version":  runtime.Version(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start pyroscope profiler: %w", err)
	}

	log.Info("Pyroscope profiling started",
		logger.String("application", appName),
		logger.String("server", cfg.ServerURL),
		logger.String("environment", cfg.Environment),
	)
	return &Profiler{profiler: p}, nil
}

// Stop flushes and stops the profiler.
func (p *Profiler) Stop() error {
	if p == nil || p.profiler == nil {
		return nil
	}
	return p.profiler.Stop()
}
