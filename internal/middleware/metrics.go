package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names exposed by the HTTP middleware.
const (
	MetricRateLimitRequests     = "flightrank_rate_limit_requests_total"
	MetricRateLimitBlocked      = "flightrank_rate_limit_blocked_total"
	MetricRateLimitRedisErrors  = "flightrank_rate_limit_redis_errors_total"
	MetricHTTPRequestDuration   = "flightrank_http_request_duration_seconds"
	MetricHTTPRequestsTotal     = "flightrank_http_requests_total"
	MetricHTTPRequestSizeBytes  = "flightrank_http_request_size_bytes"
	MetricHTTPResponseSizeBytes = "flightrank_http_response_size_bytes"
)

var (
	rateLimitLabels = []string{"endpoint", "key_type"}
	requestLabels   = []string{"method", "path", "status"}
	sizeBuckets     = prometheus.ExponentialBuckets(100, 10, 6) // 100 B to 10 MB
)

// Metrics holds the Prometheus collectors for the rate limiter and the HTTP
// request instrumentation. Safe for concurrent use.
type Metrics struct {
	rateLimitRequests    *prometheus.CounterVec
	rateLimitBlocked     *prometheus.CounterVec
	rateLimitRedisErrors prometheus.Counter
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestSize      *prometheus.HistogramVec
	httpResponseSize     *prometheus.HistogramVec
}

// NewMetrics creates unregistered middleware metrics. Call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		rateLimitRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitRequests,
			Help: "Rate limit checks by endpoint",
		}, rateLimitLabels),
		rateLimitBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitBlocked,
			Help: "Requests rejected by the rate limiter by endpoint",
		}, rateLimitLabels),
		rateLimitRedisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRateLimitRedisErrors,
			Help: "Redis failures during rate limiting (requests allowed)",
		}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: MetricHTTPRequestDuration,
			Help: "HTTP request duration in seconds",
			// Search latency is dominated by the catalog scan.
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 10},
		}, requestLabels),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "HTTP requests by method, route and status",
		}, requestLabels),
		httpRequestSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestSizeBytes,
			Help:    "HTTP request size in bytes",
			Buckets: sizeBuckets,
		}, requestLabels),
		httpResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPResponseSizeBytes,
			Help:    "HTTP response size in bytes",
			Buckets: sizeBuckets,
		}, requestLabels),
	}
}

// Register registers every collector with reg, stopping at the first failure.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRateLimitRequests counts a rate limit check for endpoint (e.g. "/search")
// and keyType (e.g. "ip").
func (m *Metrics) IncRateLimitRequests(endpoint, keyType string) {
	m.rateLimitRequests.WithLabelValues(endpoint, keyType).Inc()
}

// IncRateLimitBlocked counts a rejected request.
func (m *Metrics) IncRateLimitBlocked(endpoint, keyType string) {
	m.rateLimitBlocked.WithLabelValues(endpoint, keyType).Inc()
}

// IncRateLimitRedisErrors counts a fail-open event.
func (m *Metrics) IncRateLimitRedisErrors() {
	m.rateLimitRedisErrors.Inc()
}

// ObserveHTTPRequest records one completed request. path must already be
// normalized; duration is in seconds and sizes in bytes.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, duration float64, requestSize, responseSize int64) {
	labels := prometheus.Labels{"method": method, "path": path, "status": status}
	m.httpRequestDuration.With(labels).Observe(duration)
	m.httpRequestsTotal.With(labels).Inc()
	m.httpRequestSize.With(labels).Observe(float64(requestSize))
	m.httpResponseSize.With(labels).Observe(float64(responseSize))
}

// Collectors returns all collectors owned by m.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.rateLimitRequests,
		m.rateLimitBlocked,
		m.rateLimitRedisErrors,
		m.httpRequestDuration,
		m.httpRequestsTotal,
		m.httpRequestSize,
		m.httpResponseSize,
	}
}
