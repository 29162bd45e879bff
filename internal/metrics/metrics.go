package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   prometheus.CounterVec
	HTTPRequestDuration prometheus.HistogramVec

	// Ranked-set cache metrics
	CacheHitsTotal     prometheus.CounterVec
	CacheMissesTotal   prometheus.CounterVec
	CacheWarmupsTotal  prometheus.CounterVec
	CacheErrorsTotal   prometheus.CounterVec
	CacheFallbackTotal prometheus.CounterVec

	// Ledger metrics
	LedgerEventsTotal prometheus.CounterVec

	// Feed metrics
	FeedCompositionTime prometheus.HistogramVec
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
					Name: "blast_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "blast_http_request_duration_seconds",
					Help:    "HTTP request latency",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
			CacheHitsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "blast_cache_hits_total",
					Help: "Ranked-set reads served from a warm cache",
				},
				[]string{"kind"},
			),
			CacheMissesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "blast_cache_misses_total",
					Help: "Ranked-set reads that found a cold cache",
				},
				[]string{"kind"},
			),
			CacheWarmupsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "blast_cache_warmups_total",
					Help: "Ranked-set rebuilds from the relational store",
				},
				[]string{"kind"},
			),
			CacheErrorsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "blast_cache_errors_total",
					Help: "Cache operations that failed and were logged",
				},
				[]string{"kind", "op"},
			),
			CacheFallbackTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "blast_cache_fallback_total",
					Help: "Reads answered directly from the relational store",
				},
				[]string{"kind"},
			),
			LedgerEventsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "blast_ledger_events_total",
					Help: "Popularity ledger events processed",
				},
				[]string{"event"},
			),
			FeedCompositionTime: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "blast_feed_composition_seconds",
					Help:    "Time to compose a discovery feed page",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"feed"},
			),
		}
	})
	return instance
}

// Get returns the metrics instance, initializing it if needed
func Get() *Metrics {
	return Initialize()
}
