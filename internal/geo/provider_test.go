package geo

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var testAirports = map[string]Point{
	"ATL": {Lat: 33.6367, Lng: -84.428101},
	"TPA": {Lat: 27.9755, Lng: -82.533203},
	"VLD": {Lat: 30.782499, Lng: -83.276703},
}

func TestProvider_Distance(t *testing.T) {
	p := NewStaticProvider(testAirports)

	got, err := p.Distance(context.Background(), "ATL", "TPA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Haversine(testAirports["ATL"], testAirports["TPA"])
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Distance() = %f, want %f", got, want)
	}

	same, err := p.Distance(context.Background(), "ATL", "ATL")
	if err != nil || same != 0 {
		t.Errorf("expected zero distance for same airport, got %f (%v)", same, err)
	}
}

func TestProvider_UnknownAirport(t *testing.T) {
	p := NewStaticProvider(testAirports)

	tests := []struct {
		name     string
		from, to string
		wantCode string
	}{
		{name: "unknown origin", from: "XXX", to: "TPA", wantCode: "XXX"},
		{name: "unknown destination", from: "ATL", to: "YYY", wantCode: "YYY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Distance(context.Background(), tt.from, tt.to)
			if !errors.Is(err, ErrUnknownAirport) {
				t.Fatalf("expected ErrUnknownAirport, got %v", err)
			}
			var uae *UnknownAirportError
			if !errors.As(err, &uae) || uae.Code != tt.wantCode {
				t.Errorf("expected code %q, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestProvider_LazyLoad(t *testing.T) {
	var loads atomic.Int32
	p := NewProvider(func(context.Context) (map[string]Point, error) {
		loads.Add(1)
		return testAirports, nil
	}, nil)

	if p.Loaded() {
		t.Fatal("expected table not to be loaded before first lookup")
	}
	if loads.Load() != 0 {
		t.Fatal("loader must not run at construction")
	}

	if _, err := p.Distance(context.Background(), "ATL", "VLD"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Lookup(context.Background(), "TPA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !p.Loaded() {
		t.Error("expected table to be loaded")
	}
	if n := loads.Load(); n != 1 {
		t.Errorf("expected 1 load, got %d", n)
	}
}

func TestProvider_SingleFlight(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})

	p := NewProvider(func(context.Context) (map[string]Point, error) {
		loads.Add(1)
		<-release
		return testAirports, nil
	}, nil)

	const callers = 32
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Distance(context.Background(), "ATL", "TPA"); err != nil {
				errs <- err
			}
		}()
	}

	// Give callers time to pile up behind the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	if n := loads.Load(); n != 1 {
		t.Errorf("expected exactly 1 load, got %d", n)
	}
}

func TestProvider_FailedLoadRetries(t *testing.T) {
	var loads atomic.Int32
	p := NewProvider(func(context.Context) (map[string]Point, error) {
		if loads.Add(1) == 1 {
			return nil, errors.New("disk on fire")
		}
		return testAirports, nil
	}, nil)

	if _, err := p.Distance(context.Background(), "ATL", "TPA"); err == nil {
		t.Fatal("expected first load to fail")
	}
	if p.Loaded() {
		t.Fatal("failed load must not be published")
	}

	if _, err := p.Distance(context.Background(), "ATL", "TPA"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if n := loads.Load(); n != 2 {
		t.Errorf("expected 2 loads, got %d", n)
	}
}

func TestProvider_CallerCancellation(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})

	p := NewProvider(func(context.Context) (map[string]Point, error) {
		loads.Add(1)
		<-release
		return testAirports, nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Distance(ctx, "ATL", "TPA")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return promptly")
	}

	// The shared load keeps going and serves later callers.
	close(release)
	if err := p.Warm(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := loads.Load(); n != 1 {
		t.Errorf("expected 1 load, got %d", n)
	}
}
