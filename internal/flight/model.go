// Package flight provides the catalog record, search query and scored result
// models shared by the catalog sources, the search pipeline and the HTTP API.
package flight

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Limit bounds for a search query.
const (
	MinLimit = 1
	MaxLimit = 100
)

// ErrMalformedRecord is the sentinel wrapped by every MalformedRecordError.
var ErrMalformedRecord = errors.New("malformed flight record")

// MalformedRecordError describes a catalog entry that could not be turned into a Record.
type MalformedRecordError struct {
	Field  string // Offending field name (e.g. "departureTime")
	Value  string // Raw value as read from the catalog
	Reason string
}

// Error implements the error interface.
func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed flight record: %s %q: %s", e.Field, e.Value, e.Reason)
}

// Unwrap allows errors.Is(err, ErrMalformedRecord).
func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

// RawRecord is a flight as stored in a catalog: timestamps are ISO-8601 strings.
// The field tags match the JSON and CBOR catalog layouts.
type RawRecord struct {
	DepartureTime string `json:"departureTime" cbor:"departureTime"`
	ArrivalTime   string `json:"arrivalTime" cbor:"arrivalTime"`
	Carrier       string `json:"carrier" cbor:"carrier"`
	Origin        string `json:"origin" cbor:"origin"`
	Destination   string `json:"destination" cbor:"destination"`
}

// Record is a validated catalog flight. Records are treated as immutable.
type Record struct {
	DepartureTime time.Time
	ArrivalTime   time.Time
	Carrier       string
	Origin        string
	Destination   string
}

// Parse validates the raw record and converts its timestamps.
// Returns a *MalformedRecordError if a field is missing or a timestamp is not RFC 3339.
func (r RawRecord) Parse() (Record, error) {
	required := []struct {
		field string
		value string
	}{
		{"carrier", r.Carrier},
		{"origin", r.Origin},
		{"destination", r.Destination},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return Record{}, &MalformedRecordError{Field: f.field, Value: f.value, Reason: "required field missing"}
		}
	}

	dep, err := parseTimestamp("departureTime", r.DepartureTime)
	if err != nil {
		return Record{}, err
	}
	arr, err := parseTimestamp("arrivalTime", r.ArrivalTime)
	if err != nil {
		return Record{}, err
	}

	return Record{
		DepartureTime: dep,
		ArrivalTime:   arr,
		Carrier:       r.Carrier,
		Origin:        r.Origin,
		Destination:   r.Destination,
	}, nil
}

func parseTimestamp(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, &MalformedRecordError{Field: field, Value: value, Reason: "required field missing"}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, &MalformedRecordError{Field: field, Value: value, Reason: "not an RFC 3339 timestamp"}
	}
	return t, nil
}

// Duration returns ArrivalTime - DepartureTime. It is negative for inconsistent records.
func (r Record) Duration() time.Duration {
	return r.ArrivalTime.Sub(r.DepartureTime)
}

// Query holds validated search parameters.
type Query struct {
	DepartureAirport string
	DepartureCutoff  time.Time
	MaxDuration      *time.Duration // nil means unbounded
	PreferredCarrier string         // empty means no preference
	Limit            int
}

// ClampLimit clamps a requested result count into [MinLimit, MaxLimit].
func ClampLimit(limit int) int {
	if limit < MinLimit {
		return MinLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// K returns the effective top-K capacity for the query.
func (q Query) K() int {
	return ClampLimit(q.Limit)
}

// ScoredCandidate is a record that passed the filter together with its ranking inputs.
// Score is lower-is-better; Distance is in meters.
type ScoredCandidate struct {
	Score    float64
	Distance float64
	Duration time.Duration
	Record   Record
}
