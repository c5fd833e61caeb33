package search

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricSearchesTotal          = "flightrank_searches_total"
	MetricSearchDuration         = "flightrank_search_duration_seconds"
	MetricSearchRecordsTotal     = "flightrank_search_records_total"
	MetricSearchSkippedTotal     = "flightrank_search_skipped_records_total"
	MetricSearchResultCandidates = "flightrank_search_result_candidates"
)

// Outcome constants for completed searches.
const (
	OutcomeSuccess   = "success"
	OutcomeAborted   = "aborted"
	OutcomeCancelled = "cancelled"
)

// Record stage constants for labeling.
const (
	StageScanned  = "scanned"
	StageEligible = "eligible"
	StageScored   = "scored"
)

// Skip reason constants for labeling.
const (
	SkipUnknownAirport   = "unknown_airport"
	SkipNegativeDuration = "negative_duration"
	SkipInvalidScore     = "invalid_score"
	SkipMalformed        = "malformed"
)

// Metrics contains Prometheus metrics for search operations.
// All operations are thread-safe. A nil *Metrics records nothing.
type Metrics struct {
	searchesTotal    *prometheus.CounterVec
	searchDuration   prometheus.Histogram
	recordsTotal     *prometheus.CounterVec
	skippedTotal     *prometheus.CounterVec
	resultCandidates prometheus.Histogram
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		searchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSearchesTotal,
				Help: "Total number of flight searches by outcome",
			},
			[]string{"outcome"},
		),
		searchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricSearchDuration,
				Help:    "Histogram of flight search duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
		),
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSearchRecordsTotal,
				Help: "Total number of catalog records processed by pipeline stage",
			},
			[]string{"stage"},
		),
		skippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSearchSkippedTotal,
				Help: "Total number of catalog records skipped by reason",
			},
			[]string{"reason"},
		),
		resultCandidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricSearchResultCandidates,
				Help:    "Histogram of the number of candidates returned per search",
				Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
			},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveSearch records a finished search.
// outcome: OutcomeSuccess, OutcomeAborted or OutcomeCancelled
// seconds: Duration of the search in seconds
// stats: Per-stage counts collected while the stream was consumed
func (m *Metrics) ObserveSearch(outcome string, seconds float64, stats Stats) {
	if m == nil {
		return
	}

	m.searchesTotal.WithLabelValues(outcome).Inc()
	m.searchDuration.Observe(seconds)

	m.recordsTotal.WithLabelValues(StageScanned).Add(float64(stats.Scanned))
	m.recordsTotal.WithLabelValues(StageEligible).Add(float64(stats.Eligible))
	m.recordsTotal.WithLabelValues(StageScored).Add(float64(stats.Scored))

	m.addSkipped(SkipUnknownAirport, stats.UnknownAirport)
	m.addSkipped(SkipNegativeDuration, stats.NegativeDuration)
	m.addSkipped(SkipInvalidScore, stats.InvalidScore)
	m.addSkipped(SkipMalformed, stats.Malformed)

	if outcome == OutcomeSuccess {
		m.resultCandidates.Observe(float64(stats.Returned))
	}
}

func (m *Metrics) addSkipped(reason string, n int) {
	if n > 0 {
		m.skippedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.searchesTotal,
		m.searchDuration,
		m.recordsTotal,
		m.skippedTotal,
		m.resultCandidates,
	}
}
