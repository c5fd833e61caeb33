package search

import (
	"context"
	"errors"
	"math"

	"github.com/onnwee/flightrank/internal/flight"
	"github.com/onnwee/flightrank/internal/ranking"
)

// Scoring errors. Both mark a candidate that is skipped rather than ranked.
var (
	ErrNegativeDuration = errors.New("arrival precedes departure")
	ErrInvalidScore     = errors.New("score is not a number")
)

// DistanceProvider resolves an airport pair to a great-circle distance in meters.
type DistanceProvider interface {
	Distance(ctx context.Context, from, to string) (float64, error)
}

// Scorer computes composite scores for eligible records.
type Scorer struct {
	distances DistanceProvider
	weights   *ranking.Weights
}

// NewScorer creates a Scorer. Nil weights fall back to ranking.DefaultWeights.
func NewScorer(distances DistanceProvider, weights *ranking.Weights) *Scorer {
	if weights == nil {
		weights = ranking.DefaultWeights()
	}
	return &Scorer{
		distances: distances,
		weights:   weights,
	}
}

// Score ranks a record for the query. Distance is measured from the query's
// departure airport to the record's destination.
func (s *Scorer) Score(ctx context.Context, r flight.Record, q flight.Query) (flight.ScoredCandidate, error) {
	duration := r.Duration()
	if duration < 0 {
		return flight.ScoredCandidate{}, ErrNegativeDuration
	}

	distance, err := s.distances.Distance(ctx, q.DepartureAirport, r.Destination)
	if err != nil {
		return flight.ScoredCandidate{}, err
	}

	factor := s.weights.CarrierFactor(q.PreferredCarrier, r.Carrier)
	score := s.weights.Composite(duration, factor, distance)
	if math.IsNaN(score) {
		return flight.ScoredCandidate{}, ErrInvalidScore
	}

	return flight.ScoredCandidate{
		Score:    score,
		Distance: distance,
		Duration: duration,
		Record:   r,
	}, nil
}
