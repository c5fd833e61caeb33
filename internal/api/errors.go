// Package api provides the HTTP handlers for flight search, health probes and
// the standardized JSON error body.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/flightrank/internal/middleware"
)

// Error codes carried in the "code" field of an error body.
const (
	ErrCodeValidation       = "validation_error"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
)

// ErrorResponse is the body of every API error:
//
//	{"error": {"code": "validation_error", "message": "limit is required"}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the machine-readable code and a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusForCode maps an error code to its HTTP status. Unknown codes are 500.
func StatusForCode(code string) int {
	switch code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes the JSON error body for code with the status from
// StatusForCode, and reports code to the access log as error_code.
func WriteError(w http.ResponseWriter, ctx context.Context, code, message string) {
	ctx = middleware.SetErrorCode(ctx, code)
	middleware.UpdateResponseContext(w, ctx)
	writeJSON(w, ctx, StatusForCode(code), ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, ctx context.Context, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.DebugContext(ctx, "failed to write response", "error", err)
	}
}
