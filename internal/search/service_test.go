package search

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"log/slog"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/onnwee/flightrank/internal/flight"
	"github.com/onnwee/flightrank/internal/geo"
)

// streamItem is one element of a fake catalog stream.
type streamItem struct {
	raw flight.RawRecord
	err error
}

// sliceSource is an in-memory RecordSource.
type sliceSource struct {
	items []streamItem
	// onYield, if set, runs before the i-th item is yielded.
	onYield func(i int)
}

func (s *sliceSource) Records(ctx context.Context) iter.Seq2[flight.RawRecord, error] {
	return func(yield func(flight.RawRecord, error) bool) {
		for i, it := range s.items {
			if s.onYield != nil {
				s.onYield(i)
			}
			if !yield(it.raw, it.err) {
				return
			}
		}
	}
}

func raw(origin, dest, carrier string, dep time.Time, dur time.Duration) streamItem {
	return streamItem{raw: flight.RawRecord{
		DepartureTime: dep.Format(time.RFC3339),
		ArrivalTime:   dep.Add(dur).Format(time.RFC3339),
		Carrier:       carrier,
		Origin:        origin,
		Destination:   dest,
	}}
}

var atlQuery = flight.Query{
	DepartureAirport: "ATL",
	DepartureCutoff:  cutoff,
	Limit:            2,
}

func TestService_Search_TopK(t *testing.T) {
	dep := cutoff.Add(-time.Hour)
	src := &sliceSource{items: []streamItem{
		raw("ATL", "AAA", "DL", dep, 0),
		raw("ATL", "BBB", "DL", dep, 0),
		raw("ATL", "CCC", "DL", dep, 0),
	}}
	distances := fixedDistances{"AAA": 500, "BBB": 300, "CCC": 900}

	svc := NewService(src, distances, nil, Config{}, nil, nil)
	got, err := svc.Search(context.Background(), atlQuery)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := []float64{300, 500}; !slices.Equal(scoresOf(got), want) {
		t.Errorf("expected scores %v, got %v", want, scoresOf(got))
	}
}

func TestService_Search_AntipodalDestinationIsRanked(t *testing.T) {
	dep := cutoff.Add(-time.Hour)
	src := &sliceSource{items: []streamItem{
		raw("ATL", "BBB", "DL", dep, time.Hour),
	}}
	airports := geo.NewStaticProvider(map[string]geo.Point{
		"ATL": {Lat: 22.423913450644122, Lng: -72.70340122238315},
		"BBB": {Lat: -22.423913450644122, Lng: 107.29659877761685},
	})

	svc := NewService(src, airports, nil, Config{}, nil, nil)
	got, err := svc.Search(context.Background(), atlQuery)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].Distance < 20_000_000 || got[0].Distance > 20_020_000 {
		t.Errorf("expected distance near 20015 km, got %f", got[0].Distance)
	}
}

func TestService_Search_InvalidScoreIsLogged(t *testing.T) {
	dep := cutoff.Add(-time.Hour)
	src := &sliceSource{items: []streamItem{
		raw("ATL", "NAN", "DL", dep, time.Hour),
		raw("ATL", "TPA", "DL", dep, time.Hour),
	}}
	distances := fixedDistances{"NAN": math.NaN(), "TPA": 1000}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	svc := NewService(src, distances, nil, Config{}, nil, logger)
	got, err := svc.Search(context.Background(), atlQuery)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Record.Destination != "TPA" {
		t.Fatalf("expected only TPA to be ranked, got %+v", got)
	}

	logs := buf.String()
	if !strings.Contains(logs, "skipping candidate with invalid score") {
		t.Errorf("expected invalid score skip to be logged, got %s", logs)
	}
	if !strings.Contains(logs, `"invalid_score":1`) {
		t.Errorf("expected invalid_score count in search summary, got %s", logs)
	}
}

func TestService_Search_FiltersRecords(t *testing.T) {
	dep := cutoff.Add(-time.Hour)
	src := &sliceSource{items: []streamItem{
		raw("JFK", "TPA", "DL", dep, time.Hour),             // wrong origin, would score best
		raw("ATL", "TPA", "DL", cutoff.Add(time.Minute), 0), // departs after cutoff
		raw("ATL", "TPA", "DL", dep, 2*time.Hour),           // eligible
	}}
	distances := fixedDistances{"TPA": 1}

	q := atlQuery
	q.Limit = 10
	svc := NewService(src, distances, nil, Config{}, nil, nil)
	got, err := svc.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].Record.Origin != "ATL" || got[0].Duration != 2*time.Hour {
		t.Errorf("unexpected result %+v", got[0])
	}
}

func TestService_Search_EmptyResultIsNotError(t *testing.T) {
	src := &sliceSource{items: []streamItem{
		raw("JFK", "TPA", "DL", cutoff.Add(-time.Hour), time.Hour),
	}}

	svc := NewService(src, fixedDistances{"TPA": 1}, nil, Config{}, nil, nil)
	got, err := svc.Search(context.Background(), atlQuery)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil result, got %v", got)
	}
}

func TestService_Search_SkipsUnknownAirportAndNegativeDuration(t *testing.T) {
	dep := cutoff.Add(-time.Hour)
	src := &sliceSource{items: []streamItem{
		raw("ATL", "ZZZ", "DL", dep, time.Hour),       // unknown destination
		raw("ATL", "TPA", "DL", dep, -10*time.Minute), // arrival before departure
		raw("ATL", "TPA", "DL", dep, time.Hour),
	}}

	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}

	svc := NewService(src, fixedDistances{"TPA": 10}, nil, Config{}, m, nil)
	got, err := svc.Search(context.Background(), atlQuery)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Record.Destination != "TPA" || got[0].Duration != time.Hour {
		t.Fatalf("unexpected results %+v", got)
	}

	if v := counterValue(t, reg, MetricSearchSkippedTotal, "reason", SkipUnknownAirport); v != 1 {
		t.Errorf("expected 1 unknown_airport skip, got %f", v)
	}
	if v := counterValue(t, reg, MetricSearchSkippedTotal, "reason", SkipNegativeDuration); v != 1 {
		t.Errorf("expected 1 negative_duration skip, got %f", v)
	}
	if v := counterValue(t, reg, MetricSearchesTotal, "outcome", OutcomeSuccess); v != 1 {
		t.Errorf("expected 1 successful search, got %f", v)
	}
}

func TestService_Search_AllUnknownAirportsYieldsEmpty(t *testing.T) {
	dep := cutoff.Add(-time.Hour)
	src := &sliceSource{items: []streamItem{
		raw("ATL", "XXX", "DL", dep, time.Hour),
		raw("ATL", "YYY", "DL", dep, time.Hour),
	}}

	svc := NewService(src, fixedDistances{}, nil, Config{}, nil, nil)
	got, err := svc.Search(context.Background(), atlQuery)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestService_Search_MalformedPolicy(t *testing.T) {
	dep := cutoff.Add(-time.Hour)
	bad := raw("ATL", "TPA", "DL", dep, time.Hour)
	bad.raw.DepartureTime = "not-a-time"

	items := []streamItem{
		raw("ATL", "TPA", "DL", dep, time.Hour),
		bad,
		{err: &flight.MalformedRecordError{Field: "carrier", Reason: "wrong type"}},
		raw("ATL", "TPA", "UA", dep, 2*time.Hour),
	}

	t.Run("abort", func(t *testing.T) {
		svc := NewService(&sliceSource{items: items}, fixedDistances{"TPA": 1}, nil, Config{MalformedPolicy: MalformedAbort}, nil, nil)
		got, err := svc.Search(context.Background(), atlQuery)
		if !errors.Is(err, flight.ErrMalformedRecord) {
			t.Fatalf("expected ErrMalformedRecord, got %v", err)
		}
		if got != nil {
			t.Errorf("expected no results on abort, got %v", got)
		}
	})

	t.Run("skip", func(t *testing.T) {
		svc := NewService(&sliceSource{items: items}, fixedDistances{"TPA": 1}, nil, Config{MalformedPolicy: MalformedSkip}, nil, nil)
		got, err := svc.Search(context.Background(), atlQuery)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := []string{"DL", "UA"}; !slices.Equal(idsOf(got), want) {
			t.Errorf("expected carriers %v, got %v", want, idsOf(got))
		}
	})
}

func TestService_Search_StreamFailureAlwaysAborts(t *testing.T) {
	dep := cutoff.Add(-time.Hour)
	boom := errors.New("connection reset")
	src := &sliceSource{items: []streamItem{
		raw("ATL", "TPA", "DL", dep, time.Hour),
		{err: boom},
	}}

	svc := NewService(src, fixedDistances{"TPA": 1}, nil, Config{MalformedPolicy: MalformedSkip}, nil, nil)
	got, err := svc.Search(context.Background(), atlQuery)
	if !errors.Is(err, boom) {
		t.Fatalf("expected stream error, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no partial results, got %v", got)
	}
}

func TestService_Search_Cancellation(t *testing.T) {
	dep := cutoff.Add(-time.Hour)
	items := make([]streamItem, 100)
	for i := range items {
		items[i] = raw("ATL", "TPA", "DL", dep, time.Duration(i)*time.Minute)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	yielded := 0
	src := &sliceSource{items: items, onYield: func(i int) {
		yielded = i + 1
		if i == 10 {
			cancel()
		}
	}}

	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}

	svc := NewService(src, fixedDistances{"TPA": 1}, nil, Config{}, m, nil)
	got, err := svc.Search(ctx, atlQuery)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no partial results, got %v", got)
	}
	if yielded > 11 {
		t.Errorf("expected consumption to stop promptly, stream yielded %d records", yielded)
	}
	if v := counterValue(t, reg, MetricSearchesTotal, "outcome", OutcomeCancelled); v != 1 {
		t.Errorf("expected 1 cancelled search, got %f", v)
	}
}

func TestService_Search_PreferredCarrierHardFilter(t *testing.T) {
	dep := cutoff.Add(-time.Hour)
	src := &sliceSource{items: []streamItem{
		raw("ATL", "TPA", "AA", dep, time.Hour),
		raw("ATL", "TPA", "DL", dep, 3*time.Hour),
	}}
	q := atlQuery
	q.PreferredCarrier = "DL"

	soft := NewService(src, fixedDistances{"TPA": 1}, nil, Config{}, nil, nil)
	got, err := soft.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"AA", "DL"}; !slices.Equal(idsOf(got), want) {
		t.Errorf("scoring-only preference: expected %v, got %v", want, idsOf(got))
	}

	hard := NewService(src, fixedDistances{"TPA": 1}, nil, Config{RequirePreferredCarrier: true}, nil, nil)
	got, err = hard.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"DL"}; !slices.Equal(idsOf(got), want) {
		t.Errorf("hard filter: expected %v, got %v", want, idsOf(got))
	}
}

func TestParseMalformedPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    MalformedPolicy
		wantErr bool
	}{
		{in: "", want: MalformedAbort},
		{in: "abort", want: MalformedAbort},
		{in: "skip", want: MalformedSkip},
		{in: "ignore", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseMalformedPolicy(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidMalformedPolicy) {
				t.Errorf("ParseMalformedPolicy(%q): expected ErrInvalidMalformedPolicy, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMalformedPolicy(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

// counterValue returns the value of a labeled counter from the registry, or 0.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if hasLabel(metric, label, value) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}
