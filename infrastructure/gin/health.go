package gin

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus is the coarse state reported on /health.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const checkTimeout = 3 * time.Second

// HealthResponse is the /health body.
type HealthResponse struct {
	Status  HealthStatus           `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is one dependency's outcome.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthChecker probes one dependency.
type HealthChecker func(ctx context.Context) CheckResult

// PingFunc is a dependency ping.
type PingFunc func(ctx context.Context) error

// HealthOptions configures RegisterHealthRoutes.
type HealthOptions struct {
	ServiceName    string
	ServiceVersion string
	StartTime      time.Time
	Checks         map[string]HealthChecker
}

// RegisterHealthRoutes mounts GET and HEAD /health.
func RegisterHealthRoutes(router *gin.Engine, opts HealthOptions) {
	if opts.StartTime.IsZero() {
		opts.StartTime = time.Now()
	}
	router.GET("/health", healthHandler(opts))
	router.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
}

func healthHandler(opts HealthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := HealthResponse{
			Status:  HealthStatusHealthy,
			Service: opts.ServiceName,
			Version: opts.ServiceVersion,
			Uptime:  time.Since(opts.StartTime).Round(time.Second).String(),
		}

		if len(opts.Checks) > 0 {
			resp.Checks = runChecks(c.Request.Context(), opts.Checks)
			for _, result := range resp.Checks {
				resp.Status = worse(resp.Status, result.Status)
			}
		}

		status := http.StatusOK
		if resp.Status == HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	}
}

func runChecks(ctx context.Context, checks map[string]HealthChecker) map[string]CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]CheckResult, len(checks))
	)
	for name, check := range checks {
		wg.Go(func() {
			result := check(ctx)
			mu.Lock()
			results[name] = result
			mu.Unlock()
		})
	}
	wg.Wait()
	return results
}

func worse(a, b HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{HealthStatusHealthy: 0, HealthStatusDegraded: 1, HealthStatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// PingChecker reports onFailure when ping errors.
func PingChecker(name string, onFailure HealthStatus, ping PingFunc) HealthChecker {
	return func(ctx context.Context) CheckResult {
		start := time.Now()
		err := ping(ctx)
		latency := time.Since(start).String()
		if err != nil {
			return CheckResult{Status: onFailure, Message: fmt.Sprintf("%s connection failed", name), Latency: latency}
		}
		return CheckResult{Status: HealthStatusHealthy, Message: fmt.Sprintf("%s connection OK", name), Latency: latency}
	}
}
