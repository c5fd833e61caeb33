package search

import "github.com/onnwee/flightrank/internal/flight"

// Filter decides whether a record is eligible for a query.
// The zero value applies the default rules; preferred carrier only affects scoring.
type Filter struct {
	// RequirePreferredCarrier turns a set PreferredCarrier into a hard constraint.
	RequirePreferredCarrier bool
}

// Match reports whether the record passes the query's hard constraints:
// same origin airport, departure at or before the cutoff, and, when set,
// a duration no longer than MaxDuration.
func (f Filter) Match(r flight.Record, q flight.Query) bool {
	if r.Origin != q.DepartureAirport {
		return false
	}
	if r.DepartureTime.After(q.DepartureCutoff) {
		return false
	}
	if q.MaxDuration != nil && r.Duration() > *q.MaxDuration {
		return false
	}
	if f.RequirePreferredCarrier && q.PreferredCarrier != "" && r.Carrier != q.PreferredCarrier {
		return false
	}
	return true
}
