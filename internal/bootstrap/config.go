package bootstrap

import (
	"fmt"

	infraconfig "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/config"
	infralogger "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/config"
)

// LoadConfig loads and validates the service configuration. An empty path
// falls back to CONFIG_PATH, then config.yml.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = infraconfig.GetConfigPath("config.yml")
	}

	cfg, loadErr := config.Load(path)
	if loadErr != nil {
		return nil, fmt.Errorf("load config: %w", loadErr)
	}

	return cfg, nil
}

// CreateLogger creates a structured logger for the service.
func CreateLogger(cfg *config.Config) (infralogger.Logger, error) {
	logCfg := cfg.Logging
	logCfg.Development = logCfg.Development || cfg.Server.Debug

	log, logErr := infralogger.New(logCfg)
	if logErr != nil {
		return nil, fmt.Errorf("create logger: %w", logErr)
	}

	return log.With(
		infralogger.String("service", cfg.Service.Name),
		infralogger.String("version", cfg.Service.Version),
	), nil
}
