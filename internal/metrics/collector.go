// Package metrics exposes engine telemetry as Prometheus metrics. The
// Collector implements types.MetricsRecorder, so it plugs straight into
// the write-back engine, and serves its registry over HTTP for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftcache/driftcache/pkg/types"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// Collector records engine telemetry into a private Prometheus registry.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheRequests     *prometheus.CounterVec
	migrationCounter  *prometheus.CounterVec
	migrationDuration prometheus.Histogram
	migrationBytes    prometheus.Histogram
	latchCounter      *prometheus.CounterVec
	cachedBytes       prometheus.Gauge
	queueDepth        prometheus.Gauge
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Namespace: "driftcache",
		}
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	collector := &Collector{
		config:   config,
		registry: prometheus.NewRegistry(),
	}

	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, err
	}

	return collector, nil
}

// Registry returns the collector's registry, for callers that embed the
// exposition endpoint elsewhere.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the HTTP handler serving the registry in Prometheus
// exposition format.
func (c *Collector) Handler() http.Handler {
	if !c.config.Enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordOperation records one public engine operation.
func (c *Collector) RecordOperation(operation string, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}

	c.operationCounter.With(prometheus.Labels{
		"operation": operation,
		"status":    map[bool]string{true: "success", false: "error"}[err == nil],
	}).Inc()
	c.operationDuration.With(prometheus.Labels{
		"operation": operation,
	}).Observe(duration.Seconds())

	// Every successful set enqueues exactly one migration step; the
	// step reports back through RecordMigration or
	// RecordMigrationSkipped, which decrement the depth gauge.
	if operation == "set" && err == nil {
		c.queueDepth.Inc()
	}
}

// RecordRead records a hit on one tier.
func (c *Collector) RecordRead(tier string) {
	if !c.config.Enabled {
		return
	}

	c.cacheRequests.With(prometheus.Labels{
		"type":   "hit",
		"source": tier,
	}).Inc()
}

// RecordMiss records a key absent from both tiers.
func (c *Collector) RecordMiss() {
	if !c.config.Enabled {
		return
	}

	c.cacheRequests.With(prometheus.Labels{
		"type":   "miss",
		"source": "none",
	}).Inc()
}

// RecordMigration records one completed or failed migration step.
func (c *Collector) RecordMigration(duration time.Duration, bytes int64, err error) {
	if !c.config.Enabled {
		return
	}

	c.migrationCounter.With(prometheus.Labels{
		"status": map[bool]string{true: "success", false: "error"}[err == nil],
	}).Inc()
	c.migrationDuration.Observe(duration.Seconds())
	if err == nil {
		c.migrationBytes.Observe(float64(bytes))
	}
	c.queueDepth.Dec()
}

// RecordMigrationSkipped records a migration step that found its key
// already gone.
func (c *Collector) RecordMigrationSkipped() {
	if !c.config.Enabled {
		return
	}

	c.migrationCounter.With(prometheus.Labels{"status": "skipped"}).Inc()
	c.queueDepth.Dec()
}

// RecordLatchTrip records the operation whose failure latched an engine.
func (c *Collector) RecordLatchTrip(operation string) {
	if !c.config.Enabled {
		return
	}

	c.latchCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// SetCachedBytes tracks the engine's running local-only byte estimate.
func (c *Collector) SetCachedBytes(bytes int64) {
	if !c.config.Enabled {
		return
	}

	c.cachedBytes.Set(float64(bytes))
}

// Helper methods

func (c *Collector) initMetrics() {
	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Duration of cache operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"operation"},
	)

	c.cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "cache_requests_total",
			Help:      "Reads by outcome and serving tier",
		},
		[]string{"type", "source"},
	)

	c.migrationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "migrations_total",
			Help:      "Background migration steps by outcome",
		},
		[]string{"status"},
	)

	c.migrationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "migration_duration_seconds",
			Help:      "Duration of migration steps in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
	)

	c.migrationBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "migration_size_bytes",
			Help:      "Bytes moved per successful migration step",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to ~16GB
		},
	)

	c.latchCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "latch_trips_total",
			Help:      "Engine latch trips by triggering operation",
		},
		[]string{"operation"},
	)

	c.cachedBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "cached_bytes",
			Help:      "Estimated bytes held only in the local tier",
		},
	)

	c.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "migration_queue_depth",
			Help:      "Migration steps enqueued and not yet finished",
		},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.cacheRequests,
		c.migrationCounter,
		c.migrationDuration,
		c.migrationBytes,
		c.latchCounter,
		c.cachedBytes,
		c.queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

// Compile-time interface check.
var _ types.MetricsRecorder = (*Collector)(nil)
