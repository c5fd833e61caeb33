// Package main is the entry point for the flight search API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/onnwee/flightrank/internal/config"
	"github.com/onnwee/flightrank/internal/middleware"
	"github.com/onnwee/flightrank/internal/tracing"
)

// shutdownTimeout bounds graceful shutdown, including the tracer flush.
const shutdownTimeout = 10 * time.Second

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", os.Getenv("FLIGHTRANK_CONFIG"), "path to an optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("flightrank API server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		Exporter:       cfg.TracingExporter,
		Endpoint:       cfg.OTLPEndpoint,
		SampleRate:     cfg.TracingSampleRate,
		Insecure:       cfg.TracingInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.Error("failed to release resources", "error", err)
		}
	}()
	a.startJobs(ctx)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "version", version)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to flush traces", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
