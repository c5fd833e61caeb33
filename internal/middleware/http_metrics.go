package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// knownRoutes are the routes served by the API. Anything else is reported
// under unmatchedRoute so scanners cannot inflate label cardinality.
var knownRoutes = map[string]bool{
	"/":        true,
	"/search":  true,
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

const unmatchedRoute = "unmatched"

// normalizePath maps a request path to a bounded set of metric labels.
// A trailing slash is ignored.
func normalizePath(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if knownRoutes[path] {
		return path
	}
	return unmatchedRoute
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	mrw.wroteHeader = true
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// Unwrap returns the underlying writer for http.ResponseController and UpdateResponseContext.
func (mrw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return mrw.ResponseWriter
}

// newMetricsResponseWriter creates a new metricsResponseWriter with default 200 status.
func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics records duration, request count and body sizes per method,
// normalized route and status. Liveness and readiness probes are not recorded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := newMetricsResponseWriter(w)
			next.ServeHTTP(mrw, r)

			// ContentLength is -1 when unknown.
			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				max(r.ContentLength, 0),
				mrw.size,
			)
		})
	}
}
