package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/onnwee/flightrank/internal/tracing"
)

// ErrUnknownAirport is returned when a distance lookup names a code missing from the table.
var ErrUnknownAirport = errors.New("unknown airport")

// UnknownAirportError identifies the code that could not be resolved.
type UnknownAirportError struct {
	Code string
}

// Error implements the error interface.
func (e *UnknownAirportError) Error() string {
	return fmt.Sprintf("unknown airport %q", e.Code)
}

// Unwrap allows errors.Is(err, ErrUnknownAirport).
func (e *UnknownAirportError) Unwrap() error {
	return ErrUnknownAirport
}

const loadKey = "airports"

// Provider resolves airport code pairs to great-circle distances.
//
// The coordinate table is loaded lazily by the first lookup. Concurrent
// lookups racing the first load share a single in-flight load. Once
// published the table is never mutated, so lookups read it without locking.
// A failed load is not cached; the next lookup tries again.
type Provider struct {
	loader Loader
	logger *slog.Logger
	group  singleflight.Group
	table  atomic.Pointer[map[string]Point]
}

// NewProvider creates a Provider backed by the given loader.
func NewProvider(loader Loader, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		loader: loader,
		logger: logger,
	}
}

// NewStaticProvider creates a Provider over an already-built table.
func NewStaticProvider(airports map[string]Point) *Provider {
	p := NewProvider(func(context.Context) (map[string]Point, error) {
		return airports, nil
	}, nil)
	p.table.Store(&airports)
	return p
}

// Distance returns the great-circle distance in meters between two airports.
// It blocks while the coordinate table is loading and returns ctx.Err() if
// ctx ends first. Unrecognized codes yield an *UnknownAirportError.
func (p *Provider) Distance(ctx context.Context, from, to string) (float64, error) {
	a, err := p.Lookup(ctx, from)
	if err != nil {
		return 0, err
	}
	b, err := p.Lookup(ctx, to)
	if err != nil {
		return 0, err
	}
	return Haversine(a, b), nil
}

// Lookup returns the coordinates for a code, loading the table if needed.
func (p *Provider) Lookup(ctx context.Context, code string) (Point, error) {
	airports, err := p.airports(ctx)
	if err != nil {
		return Point{}, err
	}
	pt, ok := airports[code]
	if !ok {
		return Point{}, &UnknownAirportError{Code: code}
	}
	return pt, nil
}

// Loaded reports whether the coordinate table has been published.
func (p *Provider) Loaded() bool {
	return p.table.Load() != nil
}

// Warm loads the table eagerly. It is safe to call concurrently with lookups.
func (p *Provider) Warm(ctx context.Context) error {
	_, err := p.airports(ctx)
	return err
}

func (p *Provider) airports(ctx context.Context) (map[string]Point, error) {
	if t := p.table.Load(); t != nil {
		return *t, nil
	}

	ch := p.group.DoChan(loadKey, func() (any, error) {
		if t := p.table.Load(); t != nil {
			return *t, nil
		}
		// Detached from the first caller's cancellation: other callers share this load.
		return p.load(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]Point), nil
	}
}

func (p *Provider) load(ctx context.Context) (airports map[string]Point, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "geo.load_airports")
	defer func() { endSpan(err) }()

	start := time.Now()
	airports, err = p.loader(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to load airport table", "error", err)
		return nil, fmt.Errorf("failed to load airport table: %w", err)
	}

	p.table.Store(&airports)
	p.logger.InfoContext(ctx, "airport table loaded",
		"airports", len(airports),
		"duration_ms", time.Since(start).Milliseconds())

	return airports, nil
}
