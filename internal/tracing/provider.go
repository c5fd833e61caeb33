// Package tracing configures the OpenTelemetry tracer provider and offers
// span helpers for the search pipeline and the SQL catalog.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Exporter names accepted in Config.Exporter.
const (
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

const exporterDialTimeout = 10 * time.Second

// Config selects the exporter and sampling for the process-wide tracer.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string // "dev" when empty
	Environment    string
	Exporter       string // ExporterOTLPHTTP (default) or ExporterOTLPGRPC
	Endpoint       string // host:port; the exporter default when empty
	SampleRate     float64
	Insecure       bool
}

// Validation errors returned by NewProvider.
var (
	ErrMissingServiceName = errors.New("tracing: service name is required")
	ErrInvalidSampleRate  = errors.New("tracing: sample rate must be within [0, 1]")
)

// Provider owns the SDK tracer provider installed as the otel global.
// A disabled Provider is a no-op.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider builds the exporter, installs the tracer provider and the W3C
// propagators globally, and returns a handle for shutdown. When cfg.Enabled
// is false nothing is installed and spans stay no-ops.
func NewProvider(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		logger.Info("tracing disabled")
		return &Provider{}, nil
	}
	if cfg.ServiceName == "" {
		return nil, ErrMissingServiceName
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidSampleRate, cfg.SampleRate)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing initialized",
		"exporter", exporterName(cfg.Exporter),
		"endpoint", cfg.Endpoint,
		"sample_rate", cfg.SampleRate)

	return &Provider{tp: tp}, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	version := cfg.ServiceVersion
	if version == "" {
		version = "dev"
	}
	return resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(version),
		attribute.String("environment", cfg.Environment),
	))
}

func exporterName(name string) string {
	if name == "" {
		return ExporterOTLPHTTP
	}
	return name
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()

	switch exporterName(cfg.Exporter) {
	case ExporterOTLPHTTP:
		var opts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	case ExporterOTLPGRPC:
		var opts []otlptracegrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported exporter %q", cfg.Exporter)
	}
}

// newSampler samples root spans at rate and follows the caller's decision
// for requests that arrive with a traceparent.
func newSampler(rate float64) sdktrace.Sampler {
	switch rate {
	case 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Enabled reports whether an SDK provider was installed.
func (p *Provider) Enabled() bool {
	return p.tp != nil
}

// Shutdown flushes pending spans. It is safe on a disabled Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracing shutdown: %w", err)
	}
	return nil
}
