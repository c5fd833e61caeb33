package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/flightrank/internal/api"
	"github.com/onnwee/flightrank/internal/catalog"
	"github.com/onnwee/flightrank/internal/config"
	"github.com/onnwee/flightrank/internal/geo"
	"github.com/onnwee/flightrank/internal/health"
	"github.com/onnwee/flightrank/internal/jobs"
	"github.com/onnwee/flightrank/internal/middleware"
	"github.com/onnwee/flightrank/internal/ranking"
	"github.com/onnwee/flightrank/internal/search"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const serviceName = "flightrank-api"

const (
	airportsWarmTimeout      = 30 * time.Second
	rateLimitCleanupInterval = 5 * time.Minute
)

// app holds the wired server and the resources it must release on shutdown.
type app struct {
	server   *http.Server
	airports *geo.Provider
	jobs     []*jobs.Job
	closers  []func() error
}

// newApp wires the catalog, airport table, search service and HTTP stack from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(reg); err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}
	searchMetrics := search.NewMetrics()
	if err := searchMetrics.Register(reg); err != nil {
		return nil, fmt.Errorf("register search metrics: %w", err)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(reg); err != nil {
		return nil, fmt.Errorf("register job metrics: %w", err)
	}

	cat, err := catalog.Open(ctx, cfg.CatalogURL, catalog.Options{
		S3: catalog.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	a.closers = append(a.closers, cat.Close)
	logger.Info("catalog opened", "catalog", cat.Name)

	weights, err := ranking.LoadCalibration(cfg.RankingCalibrationPath, logger)
	if err != nil {
		// LoadCalibration already fell back to the defaults.
		logger.Warn("using default ranking weights", "error", err)
	}

	policy, err := search.ParseMalformedPolicy(cfg.MalformedPolicy)
	if err != nil {
		a.close()
		return nil, err
	}

	a.airports = geo.NewProvider(geo.FileLoader(cfg.AirportsPath), logger)
	// Failures are only recorded; the next search retries the load.
	a.jobs = append(a.jobs, jobs.New(jobs.Config{
		Type:    jobs.JobTypeAirportsWarm,
		Timeout: airportsWarmTimeout,
		Logger:  logger,
		Metrics: jobMetrics,
	}, a.airports.Warm))
	svc := search.NewService(cat.Source, a.airports, weights, search.Config{
		MalformedPolicy:         policy,
		RequirePreferredCarrier: cfg.PreferredCarrierFilter,
	}, searchMetrics, logger)

	healthCfg := api.HealthHandlersConfig{AirportsLoaded: a.airports.Loaded}
	if cat.DB != nil {
		healthCfg.DBChecker = health.SQLPing(cat.DB)
	}

	var store middleware.RateLimitStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, client.Close)
		store = middleware.NewRedisRateLimitStore(client).WithMetrics(httpMetrics)
		healthCfg.RedisChecker = health.RedisPing(client)
	} else {
		mem := middleware.NewInMemoryRateLimitStore()
		a.jobs = append(a.jobs, jobs.New(jobs.Config{
			Type:     jobs.JobTypeRateLimitCleanup,
			Interval: rateLimitCleanupInterval,
			Logger:   logger,
			Metrics:  jobMetrics,
		}, func(context.Context) error {
			mem.Cleanup()
			return nil
		}))
		store = mem
	}

	searchLimit := middleware.DefaultSearchLimit()
	searchLimit.RequestsPerWindow = cfg.SearchRateLimit
	if err := searchLimit.Validate(); err != nil {
		a.close()
		return nil, fmt.Errorf("search rate limit: %w", err)
	}

	router := api.NewRouter(api.RouterConfig{
		Search:           api.NewSearchHandlers(svc),
		Health:           api.NewHealthHandlers(healthCfg),
		Metrics:          promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		SearchMiddleware: middleware.RateLimiter(store, searchLimit, middleware.IPKeyFunc(cfg.TrustProxyHeaders), httpMetrics),
		Version:          version,
	})

	// RequestID -> Tracing -> Logging -> HTTPMetrics -> routes
	handler := middleware.RequestID(
		middleware.Tracing(serviceName)(
			middleware.Logging(logger)(
				middleware.HTTPMetrics(httpMetrics)(router),
			),
		),
	)

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A full catalog scan can be slow; the client's context bounds it.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

// startJobs launches the background jobs. They stop when ctx is done or on close.
func (a *app) startJobs(ctx context.Context) {
	for _, j := range a.jobs {
		j.Start(ctx)
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	for _, j := range a.jobs {
		j.Stop()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
