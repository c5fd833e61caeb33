// Package middleware provides HTTP middleware components for the flight search server.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"
)

type errorCodeKey struct{}

// SetErrorCode returns a copy of ctx carrying the API error code of the response.
func SetErrorCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode returns the error code stored by SetErrorCode, or "".
func GetErrorCode(ctx context.Context) string {
	code, _ := ctx.Value(errorCodeKey{}).(string)
	return code
}

// UpdateResponseContext hands ctx to the access log writer installed by
// Logging, looking through wrappers that implement Unwrap. Handlers call it
// after SetErrorCode so the log line can carry the code. Without Logging in
// the chain it does nothing.
func UpdateResponseContext(w http.ResponseWriter, ctx context.Context) {
	for w != nil {
		if aw, ok := w.(*accessWriter); ok {
			aw.ctx = ctx
			return
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return
		}
		w = u.Unwrap()
	}
}

// accessWriter records what the access log needs: the first status written,
// the body size and the context reported by the handler.
type accessWriter struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
	ctx         context.Context
}

func (aw *accessWriter) WriteHeader(code int) {
	if aw.wroteHeader {
		return
	}
	aw.status = code
	aw.wroteHeader = true
	aw.ResponseWriter.WriteHeader(code)
}

func (aw *accessWriter) Write(b []byte) (int, error) {
	if !aw.wroteHeader {
		aw.WriteHeader(http.StatusOK)
	}
	n, err := aw.ResponseWriter.Write(b)
	aw.size += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (aw *accessWriter) Unwrap() http.ResponseWriter {
	return aw.ResponseWriter
}

// NewLogger returns the process logger: JSON at info level in production,
// text at debug level otherwise. Both write to stdout.
func NewLogger(env string) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Logging writes one "request completed" line per request with method, path,
// status, latency_ms and size, plus request_id and trace_id when present and
// error_code on 4xx/5xx responses. 5xx logs at error, 4xx at warn and
// everything else at info.
//
// A panicking handler produces no line; recovery belongs outside Logging.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			aw := &accessWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(aw, r)

			ctx := r.Context()
			attrs := make([]slog.Attr, 0, 8)
			attrs = append(attrs,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", aw.status),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
				slog.Int("size", aw.size),
			)
			if id := GetRequestID(ctx); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if id := GetTraceID(ctx); id != "" {
				attrs = append(attrs, slog.String("trace_id", id))
			}
			if aw.status >= 400 {
				if code := aw.errorCode(ctx); code != "" {
					attrs = append(attrs, slog.String("error_code", code))
				}
			}

			logger.LogAttrs(ctx, levelForStatus(aw.status), "request completed", attrs...)
		})
	}
}

// errorCode prefers the handler-reported context and falls back to a code
// set on the request by earlier middleware.
func (aw *accessWriter) errorCode(reqCtx context.Context) string {
	if aw.ctx != nil {
		if code := GetErrorCode(aw.ctx); code != "" {
			return code
		}
	}
	return GetErrorCode(reqCtx)
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
