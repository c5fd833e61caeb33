package api

import (
	"net/http"
)

// RouterConfig holds the handlers mounted by NewRouter.
type RouterConfig struct {
	Search *SearchHandlers
	Health *HealthHandlers
	// Metrics serves /metrics; omitted when nil.
	Metrics http.Handler
	// SearchMiddleware wraps GET /search, typically a rate limiter; optional.
	SearchMiddleware func(http.Handler) http.Handler
	// Version is reported by GET /.
	Version string
}

// NewRouter returns the HTTP routes of the service. Unknown paths get a JSON
// 404 and known paths with the wrong method a JSON 405.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	var search http.Handler = http.HandlerFunc(cfg.Search.SearchFlights)
	if cfg.SearchMiddleware != nil {
		search = cfg.SearchMiddleware(search)
	}
	mux.Handle("GET /search", search)
	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	version := cfg.Version
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r.Context(), http.StatusOK, map[string]string{
			"service": "flightrank",
			"version": version,
		})
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pattern := mux.Handler(r)
		if pattern == "" {
			writeUnrouted(w, r, mux)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

// writeUnrouted answers a request that no pattern matches. The mux would
// reply in plain text; the API always answers in JSON.
func writeUnrouted(w http.ResponseWriter, r *http.Request, mux *http.ServeMux) {
	// Every route is GET, which also matches HEAD.
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		probe := r.Clone(r.Context())
		probe.Method = http.MethodGet
		if _, pattern := mux.Handler(probe); pattern != "" {
			w.Header().Set("Allow", "GET, HEAD")
			WriteError(w, r.Context(), ErrCodeMethodNotAllowed, "Method not allowed")
			return
		}
	}
	WriteError(w, r.Context(), ErrCodeNotFound, "The requested resource was not found")
}
