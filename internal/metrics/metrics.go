package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     prometheus.CounterVec
	HTTPRequestDuration   prometheus.HistogramVec
	HTTPActiveConnections prometheus.GaugeVec

	// Cache metrics (redis-backed and in-process query cache)
	CacheHitsTotal        prometheus.CounterVec
	CacheMissesTotal      prometheus.CounterVec
	CacheEvictionsTotal   prometheus.CounterVec
	CacheStaleServedTotal prometheus.CounterVec
	CacheInvalidations    prometheus.CounterVec

	// Tag pipeline metrics
	TagsProcessed    prometheus.Counter
	TagWriteFailures prometheus.CounterVec
	RankerBackfills  prometheus.Counter

	// Rate limiting metrics
	RateLimitExceededTotal prometheus.CounterVec

	// Error metrics
	ErrorsTotal prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPActiveConnections: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "http_active_connections",
					Help: "Number of currently active HTTP connections",
				},
				[]string{"method", "path"},
			),

			CacheHitsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_hits_total",
					Help: "Total number of cache hits",
				},
				[]string{"cache_name"},
			),
			CacheMissesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_misses_total",
					Help: "Total number of cache misses",
				},
				[]string{"cache_name"},
			),
			CacheEvictionsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_evictions_total",
					Help: "Total number of cache evictions",
				},
				[]string{"cache_name"},
			),
			CacheStaleServedTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_stale_served_total",
					Help: "Entries served stale while a refetch was in flight",
				},
				[]string{"cache_name"},
			),
			CacheInvalidations: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_invalidations_total",
					Help: "Explicit cache invalidations by trigger",
				},
				[]string{"trigger"},
			),

			TagsProcessed: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "hashtags_processed_total",
					Help: "Hashtag pairs run through the persistence adapter",
				},
			),
			TagWriteFailures: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "hashtag_write_failures_total",
					Help: "Hashtag persistence failures by stage",
				},
				[]string{"stage"},
			),
			RankerBackfills: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "hashtag_ranker_backfills_total",
					Help: "Related-tag queries that needed trending backfill",
				},
			),

			RateLimitExceededTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Total number of rate limit violations",
				},
				[]string{"endpoint", "method"},
			),

			ErrorsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total number of errors by type",
				},
				[]string{"error_type", "endpoint"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	if instance == nil {
		return Initialize()
	}
	return instance
}
