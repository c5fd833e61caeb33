package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/flightrank/internal/health"
)

// readyTimeout bounds each readiness check.
const readyTimeout = 2 * time.Second

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	checks []health.Check
}

// HealthHandlersConfig configures the health check handlers.
// Nil checkers are left out of the readiness report.
type HealthHandlersConfig struct {
	// DBChecker checks the SQL catalog, when the catalog is a database.
	DBChecker health.Checker
	// RedisChecker checks the rate limit store, when Redis is configured.
	RedisChecker health.Checker
	// AirportsLoaded reports whether the airport table has been loaded.
	// It is informational: a cold table loads on the first search.
	AirportsLoaded func() bool
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	var checks []health.Check
	if config.DBChecker != nil {
		checks = append(checks, health.Check{Name: "database", Checker: config.DBChecker, Critical: true})
	}
	if config.RedisChecker != nil {
		checks = append(checks, health.Check{Name: "redis", Checker: config.RedisChecker, Critical: true})
	}
	if config.AirportsLoaded != nil {
		checks = append(checks, health.Check{Name: "airports", Checker: health.LoadedChecker(config.AirportsLoaded)})
	}
	return &HealthHandlers{checks: checks}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r.Context(), http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": health.StatusOK},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness probe). It returns 503 when a critical
// dependency check fails.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	report := health.Run(r.Context(), readyTimeout, h.checks)
	for _, res := range report.Results {
		if res.Err != nil && res.Critical {
			slog.WarnContext(r.Context(), "readiness check failed", "check", res.Name, "error", res.Err)
		}
	}

	status, code := "healthy", http.StatusOK
	if !report.Healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, r.Context(), code, HealthResponse{
		Status:    status,
		Checks:    report.Statuses(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
