package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Func is one unit of background work.
type Func func(ctx context.Context) error

// Config configures a Job.
type Config struct {
	// Type labels the job in logs and metrics (e.g. JobTypeAirportsWarm).
	Type string
	// Interval between runs. Zero means the job runs once.
	Interval time.Duration
	// Timeout bounds each run. Zero means no per-run timeout.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *Metrics
}

// Job runs a Func once or on a fixed interval in a background goroutine.
type Job struct {
	config Config
	fn     Func

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// New creates a job. Call Start to run it.
func New(config Config, fn Func) *Job {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Job{config: config, fn: fn}
}

// Start launches the job. A periodic job runs immediately and then every
// Interval until ctx is done or Stop is called. Starting a running job is a no-op.
func (j *Job) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	ctx, j.cancel = context.WithCancel(ctx)
	j.doneCh = make(chan struct{})
	j.running = true

	go j.loop(ctx, j.doneCh)
}

// Stop cancels the job and waits for the current run to return.
func (j *Job) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	cancel, doneCh := j.cancel, j.doneCh
	j.mu.Unlock()

	cancel()
	<-doneCh
}

// isRunning reports whether the job goroutine is active.
func (j *Job) isRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Job) loop(ctx context.Context, doneCh chan struct{}) {
	defer close(doneCh)
	defer func() {
		j.mu.Lock()
		j.running = false
		j.cancel()
		j.mu.Unlock()
	}()

	j.RunOnce(ctx)
	if j.config.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Debug("background job stopping", "job_type", j.config.Type)
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce runs the job synchronously and records its outcome.
func (j *Job) RunOnce(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := j.fn(ctx)
	took := time.Since(start)
	j.config.Metrics.ObserveRun(j.config.Type, took, err, time.Now())

	if err == nil {
		j.config.Logger.Debug("background job completed",
			"job_type", j.config.Type,
			"duration_ms", took.Milliseconds())
		return nil
	}

	errorType := ErrorType(err)
	level := slog.LevelWarn
	if errorType == ErrorTypeCanceled {
		level = slog.LevelDebug
	}
	j.config.Logger.Log(ctx, level, "background job failed",
		"job_type", j.config.Type,
		"error_type", errorType,
		"duration_ms", took.Milliseconds(),
		"error", err)
	return err
}
