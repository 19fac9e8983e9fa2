// Package metrics defines the Prometheus metric collectors used by the
// movie search server and ingestion tools, and exposes an HTTP handler for
// scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	FeedbackTotal        *prometheus.CounterVec
	FeedbackResetsTotal  *prometheus.CounterVec
	IngestRunsTotal      *prometheus.CounterVec
	IngestDocsTotal      *prometheus.CounterVec
	IngestDuration       prometheus.Histogram
	IndexDocCount        *prometheus.GaugeVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
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
				Name: "movie_search_queries_total",
				Help: "Total search queries by result type (results, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "movie_search_latency_seconds",
				Help:    "Search latency in seconds by ranking mode.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "movie_search_results_count",
				Help:    "Number of matching documents per search.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 1000},
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
		FeedbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "movie_feedback_submissions_total",
				Help: "Feedback submissions by outcome (applied, invalid, not_found, error).",
			},
			[]string{"outcome"},
		),
		FeedbackResetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "movie_feedback_resets_total",
				Help: "Feedback resets by scope (one, all).",
			},
			[]string{"scope"},
		),
		IngestRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "movie_ingest_runs_total",
				Help: "Ingestion runs by outcome (success, noop, failure).",
			},
			[]string{"outcome"},
		),
		IngestDocsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "movie_ingest_documents_total",
				Help: "Documents processed by ingestion by state (indexed, skipped, failed).",
			},
			[]string{"state"},
		),
		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "movie_ingest_duration_seconds",
				Help:    "Wall time of non-noop ingestion runs.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		IndexDocCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "movie_index_document_count",
				Help: "Number of documents in the active index generation.",
			},
			[]string{"index"},
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
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.FeedbackTotal,
		m.FeedbackResetsTotal,
		m.IngestRunsTotal,
		m.IngestDocsTotal,
		m.IngestDuration,
		m.IndexDocCount,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the scrape handler for gatherer, negotiating the
// OpenMetrics format when the scraper asks for it.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
