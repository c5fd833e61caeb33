package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}
	m.ObserveRun(JobTypeAirportsWarm, time.Second, nil, time.Now())
	m.ObserveRun(JobTypeAirportsWarm, time.Second, errors.New("boom"), time.Now())

	for _, name := range []string{
		MetricBackgroundJobsTotal,
		MetricBackgroundJobsDuration,
		MetricBackgroundJobErrorsTotal,
		MetricBackgroundJobLastSuccess,
	} {
		if n, err := testutil.GatherAndCount(reg, name); err != nil || n == 0 {
			t.Errorf("metric %s not gathered (n=%d, err=%v)", name, n, err)
		}
	}

	if err := NewMetrics().Register(reg); err == nil {
		t.Error("second Register() should have returned an error")
	}
}

func TestMetrics_ObserveRun(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tests := []struct {
		name          string
		err           error
		wantStatus    string
		wantErrorType string
	}{
		{"success", nil, StatusSuccess, ""},
		{"failure", errors.New("airports.dat unreadable"), StatusFailure, ErrorTypeFailed},
		{"timeout", fmt.Errorf("load: %w", context.DeadlineExceeded), StatusFailure, ErrorTypeTimeout},
		{"canceled", context.Canceled, StatusFailure, ErrorTypeCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics()
			m.ObserveRun(JobTypeRateLimitCleanup, 250*time.Millisecond, tt.err, now)

			if got := testutil.ToFloat64(m.runs.WithLabelValues(JobTypeRateLimitCleanup, tt.wantStatus)); got != 1 {
				t.Errorf("runs{status=%s} = %v, want 1", tt.wantStatus, got)
			}
			if got := testutil.CollectAndCount(m.duration); got != 1 {
				t.Errorf("duration series = %d, want 1", got)
			}
			if tt.wantErrorType == "" {
				if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues(JobTypeRateLimitCleanup)); got != float64(now.Unix()) {
					t.Errorf("last success = %v, want %d", got, now.Unix())
				}
				if got := testutil.CollectAndCount(m.errors); got != 0 {
					t.Errorf("expected no error series, got %d", got)
				}
				return
			}
			if got := testutil.ToFloat64(m.errors.WithLabelValues(JobTypeRateLimitCleanup, tt.wantErrorType)); got != 1 {
				t.Errorf("errors{error_type=%s} = %v, want 1", tt.wantErrorType, got)
			}
			if got := testutil.CollectAndCount(m.lastSuccess); got != 0 {
				t.Errorf("failed run must not stamp last success, got %d series", got)
			}
		})
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRun(JobTypeRateLimitCleanup, time.Millisecond, errors.New("x"), time.Now())
}

func TestMetrics_Concurrency(t *testing.T) {
	m := NewMetrics()
	const goroutines, iterations = 10, 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				m.ObserveRun(JobTypeRateLimitCleanup, time.Millisecond, nil, time.Now())
			}
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(m.runs.WithLabelValues(JobTypeRateLimitCleanup, StatusSuccess)); got != goroutines*iterations {
		t.Errorf("runs = %v, want %d", got, goroutines*iterations)
	}
}
