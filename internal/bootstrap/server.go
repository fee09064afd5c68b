package bootstrap

import (
	"context"

	"github.com/gin-gonic/gin"

	infraes "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/elasticsearch"
	infragin "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/gin"
	inframetrics "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/metrics"
	infraredis "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/api"
)

// SetupHTTPServer creates the HTTP server with all handlers wired.
func (a *App) SetupHTTPServer() *infragin.Server {
	cfg := a.Config

	var searcher api.HistorySearcher
	if a.History != nil {
		searcher = a.History
	}
	handlers := api.Handlers{
		Campaigns: api.NewCampaignHandler(a.Orchestrator, cfg.Server.WriteTimeout, a.Logger),
		Backlinks: api.NewBacklinkHandler(a.Importer, a.Logger),
		Websites:  api.NewWebsiteHandler(a.Orchestrator),
		History:   api.NewHistoryHandler(a.Repository, searcher, a.Logger),
	}

	builder := infragin.NewServerBuilder(cfg.Service.Name, cfg.Server.Port).
		WithConfig(cfg.Server).
		WithLogger(a.Logger).
		WithVersion(cfg.Service.Version).
		WithDatabaseHealthCheck(a.Repository.Ping).
		WithMetricsHandler(a.Metrics.Handler()).
		WithMiddleware(inframetrics.NewHTTPMetrics(a.Registry, "backlink_indexer").Middleware()).
		WithRoutes(func(router *gin.Engine) {
			api.SetupRoutes(router, handlers, cfg.Auth.JWTSecret)
		})

	if a.Redis != nil {
		builder = builder.WithRedisHealthCheck(func(ctx context.Context) error {
			return infraredis.Ping(ctx, a.Redis)
		})
	}
	if a.Elastic != nil {
		builder = builder.WithElasticsearchHealthCheck(func(ctx context.Context) error {
			return infraes.Ping(ctx, a.Elastic, cfg.Elasticsearch)
		})
	}

	return builder.Build()
}
