// Package metrics exports the indexer's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "backlink_indexer"

// Metrics holds every collector. A nil *Metrics records nothing, so
// components built without metrics need no guards.
type Metrics struct {
	registry *prometheus.Registry

	// Batch metrics
	BatchesTotal      *prometheus.CounterVec
	BatchDuration     prometheus.Histogram
	BacklinksIndexed  prometheus.Counter
	UpstreamFailures  *prometheus.CounterVec
	ImageSkips        *prometheus.CounterVec
	BacklinksRestored prometheus.Counter

	// Lease metrics
	LeaseConflicts   prometheus.Counter
	LeasesLost       prometheus.Counter
	StuckRecoveries  prometheus.Counter
	SweepResets      prometheus.Counter
	WorkerTicks      *prometheus.CounterVec
	CampaignsInQueue prometheus.Gauge
}

// New registers the collectors on reg. Pass a fresh registry in tests.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.BatchesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_total",
		Help:      "Batches processed by outcome",
	}, []string{"outcome"})

	m.BatchDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Wall time of one ProcessBatch invocation",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	})

	m.BacklinksIndexed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backlinks_indexed_total",
		Help:      "Backlinks published in a committed batch",
	})

	m.UpstreamFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_failures_total",
		Help:      "Fatal batch failures by source",
	}, []string{"source"})

	m.ImageSkips = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "image_skips_total",
		Help:      "Posts published without a featured image, by failed step",
	}, []string{"reason"})

	m.BacklinksRestored = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backlinks_restored_total",
		Help:      "Processing backlinks returned to pending after a failed batch",
	})

	m.LeaseConflicts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lease_conflicts_total",
		Help:      "ProcessBatch calls rejected because another invocation held the lease",
	})

	m.LeasesLost = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leases_lost_total",
		Help:      "Batches abandoned because the campaign lease was lost mid-batch",
	})

	m.StuckRecoveries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stuck_recoveries_total",
		Help:      "Running campaigns re-queued inline by ProcessBatch",
	})

	m.SweepResets = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_resets_total",
		Help:      "Campaigns reset by the stuck sweeper",
	})

	m.WorkerTicks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_ticks_total",
		Help:      "Worker poll ticks by result",
	}, []string{"result"})

	m.CampaignsInQueue = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "campaigns_in_queue",
		Help:      "Queued or running campaigns seen on the last worker poll",
	})

	return m
}

// Handler serves the registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveBatch records one invocation.
func (m *Metrics) ObserveBatch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(outcome).Inc()
	m.BatchDuration.Observe(d.Seconds())
}

// AddIndexed counts committed backlinks.
func (m *Metrics) AddIndexed(n int) {
	if m == nil {
		return
	}
	m.BacklinksIndexed.Add(float64(n))
}

// UpstreamFailure counts a fatal batch failure.
func (m *Metrics) UpstreamFailure(source string) {
	if m == nil {
		return
	}
	m.UpstreamFailures.WithLabelValues(source).Inc()
}

// ImageSkipped counts a post published without an image.
func (m *Metrics) ImageSkipped(reason string) {
	if m == nil {
		return
	}
	m.ImageSkips.WithLabelValues(reason).Inc()
}

// Restored counts backlinks rolled back to pending.
func (m *Metrics) Restored(n int64) {
	if m == nil {
		return
	}
	m.BacklinksRestored.Add(float64(n))
}

// LeaseConflict counts a rejected invocation.
func (m *Metrics) LeaseConflict() {
	if m == nil {
		return
	}
	m.LeaseConflicts.Inc()
}

// LeaseLost counts an abandoned batch.
func (m *Metrics) LeaseLost() {
	if m == nil {
		return
	}
	m.LeasesLost.Inc()
}

// StuckRecovered counts an inline re-queue.
func (m *Metrics) StuckRecovered() {
	if m == nil {
		return
	}
	m.StuckRecoveries.Inc()
}

// SweepReset counts campaigns reset by a sweep.
func (m *Metrics) SweepReset(n int) {
	if m == nil {
		return
	}
	m.SweepResets.Add(float64(n))
}

// WorkerTick records a poll and the queue size it saw.
func (m *Metrics) WorkerTick(result string, queued int) {
	if m == nil {
		return
	}
	m.WorkerTicks.WithLabelValues(result).Inc()
	m.CampaignsInQueue.Set(float64(queued))
}
