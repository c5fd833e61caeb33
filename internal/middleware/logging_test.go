package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// testLogEntry is one parsed access log line.
type testLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS *int64 `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	ErrorCode string `json:"error_code"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		requestID string
		want      testLogEntry
	}{
		{
			name: "success with implicit status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("[]"))
			},
			want: testLogEntry{Level: "INFO", Status: 200, Size: 2},
		},
		{
			name: "validation error reported through the writer",
			handler: func(w http.ResponseWriter, r *http.Request) {
				UpdateResponseContext(w, SetErrorCode(r.Context(), "validation_error"))
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{}}`))
			},
			want: testLogEntry{Level: "WARN", Status: 400, Size: 12, ErrorCode: "validation_error"},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				UpdateResponseContext(w, SetErrorCode(r.Context(), "internal_error"))
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: testLogEntry{Level: "ERROR", Status: 500, ErrorCode: "internal_error"},
		},
		{
			name: "error code ignored on success",
			handler: func(w http.ResponseWriter, r *http.Request) {
				UpdateResponseContext(w, SetErrorCode(r.Context(), "stale"))
				w.WriteHeader(http.StatusOK)
			},
			want: testLogEntry{Level: "INFO", Status: 200},
		},
		{
			name:      "request id",
			requestID: "req-id-789",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			want: testLogEntry{Level: "WARN", Status: 429, RequestID: "req-id-789"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := RequestID(Logging(newTestLogger(&buf))(tt.handler))

			req := httptest.NewRequest(http.MethodGet, "/search", nil)
			if tt.requestID != "" {
				req.Header.Set(RequestIDHeader, tt.requestID)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var got testLogEntry
			if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
			}
			if got.Msg != "request completed" || got.Method != "GET" || got.Path != "/search" {
				t.Errorf("unexpected entry %+v", got)
			}
			if got.LatencyMS == nil || *got.LatencyMS < 0 {
				t.Error("expected latency_ms >= 0")
			}
			if got.Level != tt.want.Level || got.Status != tt.want.Status || got.ErrorCode != tt.want.ErrorCode {
				t.Errorf("got level=%s status=%d error_code=%q, want %s/%d/%q",
					got.Level, got.Status, got.ErrorCode, tt.want.Level, tt.want.Status, tt.want.ErrorCode)
			}
			if tt.want.Size != 0 && got.Size != tt.want.Size {
				t.Errorf("expected size %d, got %d", tt.want.Size, got.Size)
			}
			if tt.want.RequestID != "" && got.RequestID != tt.want.RequestID {
				t.Errorf("expected request_id %s, got %s", tt.want.RequestID, got.RequestID)
			}
			if tt.want.RequestID == "" && got.RequestID == "" {
				t.Error("expected a generated request_id")
			}
		})
	}
}

func TestLogging_ErrorCodeFromRequestContext(t *testing.T) {
	var buf bytes.Buffer
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	// An outer middleware stamps the code on the request before Logging sees it.
	stamp := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(SetErrorCode(r.Context(), "blocked")))
		})
	}
	stamp(Logging(newTestLogger(&buf))(inner)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	var got testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if got.ErrorCode != "blocked" {
		t.Errorf("expected error_code blocked, got %q", got.ErrorCode)
	}
}

func TestUpdateResponseContext_ThroughMetricsWriter(t *testing.T) {
	var buf bytes.Buffer

	// The handler sees the metrics writer, which wraps the logging writer.
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetErrorCode(r.Context(), "validation_error"))
		w.WriteHeader(http.StatusBadRequest)
	})
	handler := Logging(newTestLogger(&buf))(HTTPMetrics(NewMetrics())(inner))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/search?limit=x", nil))

	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry.ErrorCode != "validation_error" {
		t.Errorf("expected error_code validation_error, got %q", entry.ErrorCode)
	}
}

func TestUpdateResponseContext_NoLoggingWriter(t *testing.T) {
	// Must not panic on a writer outside the Logging middleware.
	UpdateResponseContext(httptest.NewRecorder(), context.Background())
}

func TestSetErrorCode_GetErrorCode(t *testing.T) {
	ctx := context.Background()
	if code := GetErrorCode(ctx); code != "" {
		t.Errorf("expected empty error code, got %q", code)
	}
	if code := GetErrorCode(SetErrorCode(ctx, "not_found")); code != "not_found" {
		t.Errorf("expected not_found, got %q", code)
	}
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"production", "development", "test"} {
		if NewLogger(env) == nil {
			t.Errorf("NewLogger(%q) returned nil", env)
		}
	}
	if !NewLogger("development").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("development logger should log at debug")
	}
	if NewLogger("production").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("production logger should not log at debug")
	}
}
