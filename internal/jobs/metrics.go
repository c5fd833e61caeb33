// Package jobs runs the server's background work (airport table warm-up and
// rate limit store cleanup) and reports it to Prometheus.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Exported metric names.
const (
	MetricBackgroundJobsTotal      = "flightrank_background_jobs_total"
	MetricBackgroundJobsDuration   = "flightrank_background_jobs_duration_seconds"
	MetricBackgroundJobErrorsTotal = "flightrank_background_job_errors_total"
	MetricBackgroundJobLastSuccess = "flightrank_background_job_last_success_timestamp_seconds"
)

// Job types, used as the job_type label.
const (
	JobTypeAirportsWarm     = "airports_warm"
	JobTypeRateLimitCleanup = "ratelimit_cleanup"
	JobTypeCatalogImport    = "catalog_import"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Failure classes, used as the error_type label.
const (
	ErrorTypeTimeout  = "timeout"
	ErrorTypeCanceled = "canceled"
	ErrorTypeFailed   = "failed"
)

// Metrics records background job runs. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewMetrics creates unregistered job collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricBackgroundJobsTotal,
			Help: "Background job runs by job type and status.",
		}, []string{"job_type", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricBackgroundJobsDuration,
			Help:    "Background job run duration in seconds.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"job_type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricBackgroundJobErrorsTotal,
			Help: "Failed background job runs by job type and error type.",
		}, []string{"job_type", "error_type"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricBackgroundJobLastSuccess,
			Help: "Unix time of the last successful run per job type.",
		}, []string{"job_type"}),
	}
}

// Register registers the collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.runs, m.duration, m.errors, m.lastSuccess} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRun records one finished run of jobType. A nil err counts as a
// success and stamps the last-success gauge with now.
func (m *Metrics) ObserveRun(jobType string, took time.Duration, err error, now time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(jobType).Observe(took.Seconds())
	if err == nil {
		m.runs.WithLabelValues(jobType, StatusSuccess).Inc()
		m.lastSuccess.WithLabelValues(jobType).Set(float64(now.Unix()))
		return
	}
	m.runs.WithLabelValues(jobType, StatusFailure).Inc()
	m.errors.WithLabelValues(jobType, ErrorType(err)).Inc()
}

// ErrorType maps a run error to its error_type label.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	default:
		return ErrorTypeFailed
	}
}
