package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/flightrank/internal/flight"
)

// Searcher runs a ranked flight search.
type Searcher interface {
	Search(ctx context.Context, q flight.Query) ([]flight.ScoredCandidate, error)
}

// SearchHandlers holds dependencies for search HTTP handlers.
type SearchHandlers struct {
	searcher Searcher
}

// NewSearchHandlers creates a new SearchHandlers instance.
func NewSearchHandlers(searcher Searcher) *SearchHandlers {
	return &SearchHandlers{searcher: searcher}
}

// FlightResult is one ranked flight in the GET /search response.
// Distance is in meters and Duration in milliseconds.
type FlightResult struct {
	Score         float64 `json:"score"`
	Distance      float64 `json:"distance"`
	Duration      int64   `json:"duration"`
	DepartureTime string  `json:"departureTime"`
	ArrivalTime   string  `json:"arrivalTime"`
	Carrier       string  `json:"carrier"`
	Origin        string  `json:"origin"`
	Destination   string  `json:"destination"`
}

// ValidationError reports an invalid query parameter.
type ValidationError struct {
	Param   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Param, e.Message)
}

// maxDurationMillis is the largest maxDuration that fits a time.Duration.
const maxDurationMillis = math.MaxInt64 / int64(time.Millisecond)

// ParseSearchQuery validates the GET /search query parameters.
// limit is clamped to [flight.MinLimit, flight.MaxLimit]; values too large to
// parse clamp to the maximum.
func ParseSearchQuery(values url.Values) (flight.Query, error) {
	var q flight.Query

	q.DepartureAirport = strings.TrimSpace(values.Get("departureAirport"))
	if q.DepartureAirport == "" {
		return q, &ValidationError{Param: "departureAirport", Message: "is required"}
	}

	departure := strings.TrimSpace(values.Get("departure"))
	if departure == "" {
		return q, &ValidationError{Param: "departure", Message: "is required"}
	}
	cutoff, err := parseInstant(departure)
	if err != nil {
		return q, &ValidationError{Param: "departure", Message: "must be an RFC 3339 timestamp"}
	}
	q.DepartureCutoff = cutoff

	if raw := values.Get("maxDuration"); raw != "" {
		if !isDigits(raw) {
			return q, &ValidationError{Param: "maxDuration", Message: "must be a non-negative integer number of milliseconds"}
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms > maxDurationMillis {
			return q, &ValidationError{Param: "maxDuration", Message: "is too large"}
		}
		d := time.Duration(ms) * time.Millisecond
		q.MaxDuration = &d
	}

	q.PreferredCarrier = strings.TrimSpace(values.Get("preferredCarrier"))

	raw := values.Get("limit")
	if raw == "" {
		return q, &ValidationError{Param: "limit", Message: "is required"}
	}
	if !isDigits(raw) {
		return q, &ValidationError{Param: "limit", Message: "must contain only digits"}
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		// Only a range error is possible after the digit check.
		limit = flight.MaxLimit
	}
	q.Limit = flight.ClampLimit(limit)

	return q, nil
}

// parseInstant accepts RFC 3339 with optional fractional seconds. A '+' in an
// unescaped query string arrives as a space and is restored.
func parseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil && strings.Contains(s, " ") {
		return time.Parse(time.RFC3339Nano, strings.ReplaceAll(s, " ", "+"))
	}
	return t, err
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// SearchFlights handles GET /search and returns the ranked flights as a JSON array.
func (h *SearchHandlers) SearchFlights(w http.ResponseWriter, r *http.Request) {
	q, err := ParseSearchQuery(r.URL.Query())
	if err != nil {
		WriteError(w, r.Context(), ErrCodeValidation, err.Error())
		return
	}

	candidates, err := h.searcher.Search(r.Context(), q)
	if err != nil {
		if r.Context().Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			slog.InfoContext(r.Context(), "search cancelled by client",
				"departure_airport", q.DepartureAirport, "error", err)
			return
		}
		slog.ErrorContext(r.Context(), "search failed",
			"departure_airport", q.DepartureAirport, "error", err)
		WriteError(w, r.Context(), ErrCodeInternal, "Search failed")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, FlightResults(candidates))
}

// FlightResults converts ranked candidates to their JSON form. The result is
// never nil so an empty ranking encodes as [].
func FlightResults(candidates []flight.ScoredCandidate) []FlightResult {
	results := make([]FlightResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, toFlightResult(c))
	}
	return results
}

func toFlightResult(c flight.ScoredCandidate) FlightResult {
	return FlightResult{
		Score:         c.Score,
		Distance:      c.Distance,
		Duration:      c.Duration.Milliseconds(),
		DepartureTime: c.Record.DepartureTime.Format(time.RFC3339Nano),
		ArrivalTime:   c.Record.ArrivalTime.Format(time.RFC3339Nano),
		Carrier:       c.Record.Carrier,
		Origin:        c.Record.Origin,
		Destination:   c.Record.Destination,
	}
}
