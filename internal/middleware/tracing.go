package middleware

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// untracedRoutes are probed continuously and would drown real traces.
var untracedRoutes = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// Tracing starts a server span per request using otelhttp and the global
// tracer provider and propagator (W3C traceparent/tracestate). Spans are named
// "METHOD route" with the route normalized like the metrics label. The request
// ID set by RequestID is recorded as the http.request_id attribute, so Tracing
// must run inside RequestID.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		tagged := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := GetRequestID(r.Context()); id != "" {
				trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("http.request_id", id))
			}
			next.ServeHTTP(w, r)
		})

		return otelhttp.NewHandler(tagged, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + normalizePath(r.URL.Path)
			}),
			otelhttp.WithFilter(func(r *http.Request) bool {
				return !untracedRoutes[r.URL.Path]
			}),
		)
	}
}

// GetTraceID returns the active trace ID in ctx, or "" when there is none.
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}
