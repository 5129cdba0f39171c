// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	SearchDanglingTotal  prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsMutatedTotal     *prometheus.CounterVec
	DocsPrunedTotal      prometheus.Counter
	AgentQueueDepth      prometheus.Gauge
	AgentEventsTotal     *prometheus.CounterVec
	CatalogsActive       prometheus.Gauge
	BookPackages         prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg means
// the Prometheus default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by scope (entity, books, unified) and status.",
			},
			[]string{"scope", "status"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"scope"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of visible hits per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		SearchDanglingTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_dangling_ids_total",
				Help: "Hits skipped because their object could not be resolved.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		DocsMutatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docs_mutated_total",
				Help: "Catalog mutations by operation (index, update, delete) and result.",
			},
			[]string{"op", "result"},
		),
		DocsPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_pruned_total",
				Help: "Dangling doc ids removed by maintenance.",
			},
		),
		AgentQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_agent_queue_depth",
				Help: "Events waiting in the index agent queue.",
			},
		),
		AgentEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_agent_events_total",
				Help: "Index agent events by outcome (accepted, applied, failed, rejected).",
			},
			[]string{"outcome"},
		),
		CatalogsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalogs_active",
				Help: "Number of per-entity catalogs in memory.",
			},
		),
		BookPackages: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "book_packages_loaded",
				Help: "Number of static book packages loaded.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.SearchDanglingTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsMutatedTotal,
		m.DocsPrunedTotal,
		m.AgentQueueDepth,
		m.AgentEventsTotal,
		m.CatalogsActive,
		m.BookPackages,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
