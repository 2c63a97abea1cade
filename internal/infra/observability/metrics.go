package observability

import (
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Cache label used for the analytics result cache.
const AnalyticsCache = "analytics"

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	computations    *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	recordsFetched  prometheus.Histogram
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bfa_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		computations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_analytics_computations_total",
				Help: "Analytics pipeline runs by record source.",
			},
			[]string{"source"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_requests_total",
				Help: "Total requests processed.",
			},
			[]string{"status"},
		),
		recordsFetched: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bfa_invoice_records_fetched",
				Help:    "Invoice records returned per store fetch.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrComputation counts one pipeline run for the given source.
func (m *Metrics) IncrComputation(source domain.ResultSource) {
	m.computations.WithLabelValues(string(source)).Inc()
}

// ObserveRecordsFetched records the size of a store fetch.
func (m *Metrics) ObserveRecordsFetched(n int) {
	m.recordsFetched.Observe(float64(n))
}

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// GetAnalyticsSnapshot returns a snapshot of analytics counters suitable for the
// GET /v1/metrics/analytics endpoint. Values are cumulative since process start.
func (m *Metrics) GetAnalyticsSnapshot() *domain.AnalyticsMetrics {
	success := getCounterValue(m.requestsTotal, "success")
	errorCount := getCounterValue(m.requestsTotal, "error")
	totalRequests := success + errorCount
	cacheHits := getCounterValue(m.cacheHits, AnalyticsCache)
	cacheMisses := getCounterValue(m.cacheMisses, AnalyticsCache)

	errorRate := float64(0)
	cacheHitRate := float64(0)
	if totalRequests > 0 {
		errorRate = errorCount / totalRequests
	}
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.AnalyticsMetrics{
		TotalRequests:    int64(totalRequests),
		ErrorRate:        errorRate,
		CacheHitRate:     cacheHitRate,
		LiveComputations: int64(getCounterValue(m.computations, string(domain.SourceLive))),
		DemoComputations: int64(getCounterValue(m.computations, string(domain.SourceDemo))),
		StoreErrors:      int64(getCounterValue(m.externalErrors, "store")),
		Period:           "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
