package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitConfig is a fixed window limit: at most RequestsPerWindow
// requests per key in each WindowDuration.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate reports a non-positive request count or window.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("RequestsPerWindow must be > 0 (got %d)", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("WindowDuration must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

// DefaultSearchLimit returns the GET /search limit: 60 requests per minute per client.
func DefaultSearchLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 60, WindowDuration: time.Minute}
}

// RateLimitStore defines the interface for rate limit state storage.
// This allows for different backends (in-memory, Redis).
type RateLimitStore interface {
	// Allow records a request for key and reports whether it is within the limit,
	// how many requests remain in the current window, and the number of seconds
	// until the window resets when the request is rejected (0 otherwise).
	Allow(ctx context.Context, key string, config RateLimitConfig) (allowed bool, remaining int, retryAfter int)
}

// bucket represents a rate limit bucket for a single key.
type bucket struct {
	count     int
	windowEnd time.Time
}

// InMemoryRateLimitStore implements RateLimitStore using an in-memory map.
// It uses a simple fixed window counter algorithm.
// Thread-safe for concurrent access.
type InMemoryRateLimitStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewInMemoryRateLimitStore creates a new in-memory rate limit store.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{
		buckets: make(map[string]*bucket),
	}
}

// Allow implements the RateLimitStore interface.
func (s *InMemoryRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	b, exists := s.buckets[key]
	if !exists || now.After(b.windowEnd) {
		// New window or expired window
		s.buckets[key] = &bucket{
			count:     1,
			windowEnd: now.Add(config.WindowDuration),
		}
		return true, config.RequestsPerWindow - 1, 0
	}

	if b.count < config.RequestsPerWindow {
		b.count++
		return true, config.RequestsPerWindow - b.count, 0
	}

	return false, 0, retryAfterSeconds(b.windowEnd.Sub(now))
}

// Cleanup removes expired buckets to prevent memory leaks.
// Recommended cleanup interval is 2-5x the longest configured WindowDuration.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, b := range s.buckets {
		if now.After(b.windowEnd) {
			delete(s.buckets, key)
		}
	}
}

// fixedWindowScript increments the window counter, starts the window on the
// first hit and returns {count, ttl_ms}.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisRateLimitStore implements RateLimitStore with a fixed window counter in
// Redis, so limits hold across server replicas. It fails open: when Redis is
// unreachable the request is allowed with the full quota.
type RedisRateLimitStore struct {
	client  redis.Scripter
	metrics *Metrics
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
func NewRedisRateLimitStore(client redis.Scripter) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// WithMetrics sets the metrics used to count Redis errors and returns the store.
func (s *RedisRateLimitStore) WithMetrics(m *Metrics) *RedisRateLimitStore {
	s.metrics = m
	return s
}

// Allow implements the RateLimitStore interface.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, int) {
	vals, err := fixedWindowScript.Run(ctx, s.client, []string{key}, config.WindowDuration.Milliseconds()).Int64Slice()
	if err != nil || len(vals) != 2 {
		if s.metrics != nil {
			s.metrics.IncRateLimitRedisErrors()
		}
		slog.WarnContext(ctx, "rate limit store unavailable, allowing request", "error", err)
		return true, config.RequestsPerWindow, 0
	}

	count, ttlMillis := int(vals[0]), vals[1]
	if count <= config.RequestsPerWindow {
		return true, config.RequestsPerWindow - count, 0
	}
	return false, 0, retryAfterSeconds(time.Duration(ttlMillis) * time.Millisecond)
}

// retryAfterSeconds rounds a remaining window up to whole seconds, at least 1.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs <= 0 {
		return 1
	}
	return secs
}

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc returns a KeyFunc that uses the client's IP address. Forwarding
// headers are client-controlled, so they are consulted only when
// trustProxyHeaders is set; otherwise the key is the connection's peer address.
func IPKeyFunc(trustProxyHeaders bool) KeyFunc {
	return func(r *http.Request) string {
		if trustProxyHeaders {
			// First hop of X-Forwarded-For, trimmed per RFC 7239.
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				if idx := strings.Index(xff, ","); idx != -1 {
					return strings.TrimSpace(xff[:idx])
				}
				return strings.TrimSpace(xff)
			}
			if xri := r.Header.Get("X-Real-IP"); xri != "" {
				return strings.TrimSpace(xri)
			}
		}
		// Fall back to RemoteAddr (strip port properly for both IPv4 and IPv6)
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			// RemoteAddr might not have a port
			return r.RemoteAddr
		}
		return host
	}
}

// rateLimitedBody matches the API's standard error body.
const rateLimitedBody = `{"error":{"code":"rate_limited","message":"Too many requests, retry later"}}`

// RateLimiter is a middleware that limits request rates per key.
// It returns HTTP 429 Too Many Requests when the limit is exceeded.
// metrics may be nil.
func RateLimiter(store RateLimitStore, config RateLimitConfig, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			endpoint := normalizePath(r.URL.Path)
			key := "ratelimit:" + endpoint + ":" + keyFunc(r)

			if metrics != nil {
				metrics.IncRateLimitRequests(endpoint, "ip")
			}

			allowed, remaining, retryAfter := store.Allow(r.Context(), key, config)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				if metrics != nil {
					metrics.IncRateLimitBlocked(endpoint, "ip")
				}
				UpdateResponseContext(w, SetErrorCode(r.Context(), "rate_limited"))

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				// X-RateLimit-Reset should be a Unix timestamp per API conventions
				resetTime := time.Now().Add(time.Duration(retryAfter) * time.Second).Unix()
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(rateLimitedBody))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
