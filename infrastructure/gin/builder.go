package gin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
)

// ServerBuilder assembles a Server fluently.
type ServerBuilder struct {
	config         *Config
	logger         logger.Logger
	setupRoutes    func(*gin.Engine)
	healthChecks   map[string]HealthChecker
	metricsHandler http.Handler
	middleware     []gin.HandlerFunc
}

// NewServerBuilder starts from defaults for the named service.
func NewServerBuilder(serviceName string, port int) *ServerBuilder {
	return &ServerBuilder{
		config:       &Config{Port: port, ServiceName: serviceName},
		healthChecks: make(map[string]HealthChecker),
	}
}

// WithConfig replaces the server block, keeping the service name.
func (b *ServerBuilder) WithConfig(cfg Config) *ServerBuilder {
	cfg.ServiceName = b.config.ServiceName
	cfg.ServiceVersion = b.config.ServiceVersion
	b.config = &cfg
	return b
}

func (b *ServerBuilder) WithLogger(log logger.Logger) *ServerBuilder {
	b.logger = log
	return b
}

func (b *ServerBuilder) WithDebug(debug bool) *ServerBuilder {
	b.config.Debug = debug
	return b
}

func (b *ServerBuilder) WithVersion(version string) *ServerBuilder {
	b.config.ServiceVersion = version
	return b
}

func (b *ServerBuilder) WithTimeouts(read, write, idle time.Duration) *ServerBuilder {
	b.config.ReadTimeout = read
	b.config.WriteTimeout = write
	b.config.IdleTimeout = idle
	return b
}

func (b *ServerBuilder) WithCORS(cfg CORSConfig) *ServerBuilder {
	b.config.CORS = cfg
	return b
}

// WithHealthCheck registers a named dependency check on /health.
func (b *ServerBuilder) WithHealthCheck(name string, checker HealthChecker) *ServerBuilder {
	b.healthChecks[name] = checker
	return b
}

// WithDatabaseHealthCheck marks the service unhealthy when Postgres is down.
func (b *ServerBuilder) WithDatabaseHealthCheck(ping PingFunc) *ServerBuilder {
	return b.WithHealthCheck("database", PingChecker("Database", HealthStatusUnhealthy, ping))
}

// WithRedisHealthCheck marks the service degraded when Redis is down.
func (b *ServerBuilder) WithRedisHealthCheck(ping PingFunc) *ServerBuilder {
	return b.WithHealthCheck("redis", PingChecker("Redis", HealthStatusDegraded, ping))
}

// WithElasticsearchHealthCheck marks the service degraded when the history index is down.
func (b *ServerBuilder) WithElasticsearchHealthCheck(ping PingFunc) *ServerBuilder {
	return b.WithHealthCheck("elasticsearch", PingChecker("Elasticsearch", HealthStatusDegraded, ping))
}

// WithMetricsHandler mounts h at GET /metrics.
func (b *ServerBuilder) WithMetricsHandler(h http.Handler) *ServerBuilder {
	b.metricsHandler = h
	return b
}

// WithMiddleware adds handlers that run ahead of every route, health included.
func (b *ServerBuilder) WithMiddleware(mw ...gin.HandlerFunc) *ServerBuilder {
	b.middleware = append(b.middleware, mw...)
	return b
}

func (b *ServerBuilder) WithRoutes(setup func(*gin.Engine)) *ServerBuilder {
	b.setupRoutes = setup
	return b
}

// Build wires health and metrics routes ahead of the service routes.
func (b *ServerBuilder) Build() *Server {
	if b.logger == nil {
		b.logger = logger.NewNop()
	}
	b.config.SetDefaults()

	return NewServer(b.config, b.logger, func(router *gin.Engine) {
		router.Use(b.middleware...)
		RegisterHealthRoutes(router, HealthOptions{
			ServiceName:    b.config.ServiceName,
			ServiceVersion: b.config.ServiceVersion,
			Checks:         b.healthChecks,
		})
		if b.metricsHandler != nil {
			router.GET("/metrics", gin.WrapH(b.metricsHandler))
		}
		if b.setupRoutes != nil {
			b.setupRoutes(router)
		}
	})
}

// ProtectedGroup returns a group behind JWT auth. An empty secret leaves it open.
func ProtectedGroup(router *gin.Engine, path, jwtSecret string) *gin.RouterGroup {
	group := router.Group(path)
	if jwtSecret != "" {
		group.Use(jwt.Middleware(jwtSecret))
	}
	return group
}
