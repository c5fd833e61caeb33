package search

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/flightrank/internal/flight"
	"github.com/onnwee/flightrank/internal/geo"
	"github.com/onnwee/flightrank/internal/ranking"
	"github.com/onnwee/flightrank/internal/tracing"
)

// MalformedPolicy controls what a search does with a catalog entry that
// cannot be parsed.
type MalformedPolicy string

const (
	// MalformedAbort fails the whole search on the first malformed entry.
	MalformedAbort MalformedPolicy = "abort"
	// MalformedSkip drops the entry and keeps consuming the stream.
	MalformedSkip MalformedPolicy = "skip"
)

// ErrInvalidMalformedPolicy is returned by ParseMalformedPolicy for unknown values.
var ErrInvalidMalformedPolicy = errors.New("malformed policy must be \"abort\" or \"skip\"")

// ParseMalformedPolicy converts a configuration string to a MalformedPolicy.
// An empty string selects MalformedAbort.
func ParseMalformedPolicy(s string) (MalformedPolicy, error) {
	switch MalformedPolicy(s) {
	case "", MalformedAbort:
		return MalformedAbort, nil
	case MalformedSkip:
		return MalformedSkip, nil
	default:
		return "", fmt.Errorf("%w (got %q)", ErrInvalidMalformedPolicy, s)
	}
}

// RecordSource yields raw catalog records. Each call to Records starts a new,
// non-restartable pass. A yielded error wrapping flight.ErrMalformedRecord
// concerns a single entry and the stream may continue; any other error ends
// the stream.
type RecordSource interface {
	Records(ctx context.Context) iter.Seq2[flight.RawRecord, error]
}

// Stats summarizes one search pass.
type Stats struct {
	Scanned          int // Entries read from the stream
	Eligible         int // Records that passed the filter
	Scored           int // Records scored and offered to the selector
	UnknownAirport   int
	NegativeDuration int
	InvalidScore     int
	Malformed        int
	Returned         int
}

// Config holds search behavior switches.
type Config struct {
	MalformedPolicy         MalformedPolicy
	RequirePreferredCarrier bool
}

// Service runs searches over a catalog.
type Service struct {
	source  RecordSource
	filter  Filter
	scorer  *Scorer
	policy  MalformedPolicy
	metrics *Metrics
	logger  *slog.Logger
}

// NewService creates a new search Service. metrics may be nil.
func NewService(source RecordSource, distances DistanceProvider, weights *ranking.Weights, cfg Config, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	policy := cfg.MalformedPolicy
	if policy == "" {
		policy = MalformedAbort
	}
	return &Service{
		source:  source,
		filter:  Filter{RequirePreferredCarrier: cfg.RequirePreferredCarrier},
		scorer:  NewScorer(distances, weights),
		policy:  policy,
		metrics: metrics,
		logger:  logger,
	}
}

// Search streams the catalog once and returns at most q.K() candidates in
// ascending score order. Candidates whose destination cannot be resolved are
// skipped. If ctx ends before the stream is exhausted, Search returns
// ctx.Err() and no candidates.
func (s *Service) Search(ctx context.Context, q flight.Query) (results []flight.ScoredCandidate, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "search.run")
	defer func() { endSpan(err) }()

	tracing.SetAttributes(ctx,
		attribute.String("search.departure_airport", q.DepartureAirport),
		attribute.Int("search.limit", q.K()),
	)

	start := time.Now()
	var stats Stats
	defer func() {
		outcome := OutcomeSuccess
		switch {
		case err != nil && ctx.Err() != nil:
			outcome = OutcomeCancelled
		case err != nil:
			outcome = OutcomeAborted
		}
		s.metrics.ObserveSearch(outcome, time.Since(start).Seconds(), stats)
		s.logger.DebugContext(ctx, "search finished",
			"outcome", outcome,
			"departure_airport", q.DepartureAirport,
			"scanned", stats.Scanned,
			"eligible", stats.Eligible,
			"scored", stats.Scored,
			"unknown_airport", stats.UnknownAirport,
			"negative_duration", stats.NegativeDuration,
			"invalid_score", stats.InvalidScore,
			"malformed", stats.Malformed,
			"returned", stats.Returned,
			"duration_ms", time.Since(start).Milliseconds())
	}()

	selector := NewSelector(q.K())

	for raw, streamErr := range s.source.Records(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stats.Scanned++

		if streamErr != nil {
			if err := s.handleMalformed(ctx, streamErr, &stats); err != nil {
				return nil, err
			}
			continue
		}

		rec, parseErr := raw.Parse()
		if parseErr != nil {
			if err := s.handleMalformed(ctx, parseErr, &stats); err != nil {
				return nil, err
			}
			continue
		}

		if !s.filter.Match(rec, q) {
			continue
		}
		stats.Eligible++

		candidate, scoreErr := s.scorer.Score(ctx, rec, q)
		if scoreErr != nil {
			if err := s.handleScoreError(ctx, scoreErr, rec, &stats); err != nil {
				return nil, err
			}
			continue
		}

		stats.Scored++
		selector.Offer(candidate)
	}

	// The source may stop early on cancellation without yielding an error.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results = selector.Drain()
	stats.Returned = len(results)
	tracing.SetAttributes(ctx,
		attribute.Int("search.scanned", stats.Scanned),
		attribute.Int("search.returned", stats.Returned),
	)

	return results, nil
}

// handleMalformed applies the malformed policy. It returns a non-nil error
// when the search must stop.
func (s *Service) handleMalformed(ctx context.Context, err error, stats *Stats) error {
	if !errors.Is(err, flight.ErrMalformedRecord) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.ErrorContext(ctx, "catalog stream failed", "error", err, "scanned", stats.Scanned)
		return fmt.Errorf("catalog stream failed: %w", err)
	}

	stats.Malformed++
	if s.policy == MalformedSkip {
		s.logger.DebugContext(ctx, "skipping malformed catalog record", "error", err, "position", stats.Scanned)
		tracing.AddEvent(ctx, "record.malformed_skipped", attribute.Int("position", stats.Scanned))
		return nil
	}

	s.logger.ErrorContext(ctx, "aborting search on malformed catalog record", "error", err, "position", stats.Scanned)
	return fmt.Errorf("search aborted at record %d: %w", stats.Scanned, err)
}

// handleScoreError counts per-candidate failures that are skipped and
// propagates everything else.
func (s *Service) handleScoreError(ctx context.Context, err error, rec flight.Record, stats *Stats) error {
	switch {
	case errors.Is(err, geo.ErrUnknownAirport):
		stats.UnknownAirport++
		s.logger.DebugContext(ctx, "skipping candidate with unknown airport", "error", err, "destination", rec.Destination)
		return nil
	case errors.Is(err, ErrNegativeDuration):
		stats.NegativeDuration++
		s.logger.DebugContext(ctx, "skipping candidate with negative duration",
			"departure_time", rec.DepartureTime, "arrival_time", rec.ArrivalTime)
		return nil
	case errors.Is(err, ErrInvalidScore):
		stats.InvalidScore++
		s.logger.DebugContext(ctx, "skipping candidate with invalid score", "error", err, "destination", rec.Destination)
		return nil
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to score candidate: %w", err)
	}
}
