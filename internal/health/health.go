// Package health runs dependency checks for the readiness endpoint.
package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Check statuses reported per dependency.
const (
	StatusOK    = "ok"
	StatusError = "error"
	// StatusPending marks a failed informational check.
	StatusPending = "pending"
)

// ErrNotLoaded is returned by LoadedChecker while the resource is not loaded yet.
var ErrNotLoaded = errors.New("not loaded")

// Checker is implemented by anything that can report its own health.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) error

// HealthCheck calls f(ctx).
func (f CheckerFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// LoadedChecker reports ErrNotLoaded until loaded returns true.
func LoadedChecker(loaded func() bool) Checker {
	return CheckerFunc(func(context.Context) error {
		if !loaded() {
			return ErrNotLoaded
		}
		return nil
	})
}

// Check is a named dependency check. A failing Critical check makes the
// service unready; a failing informational check is reported as pending.
type Check struct {
	Name     string
	Checker  Checker
	Critical bool
}

// Result is the outcome of one Check.
type Result struct {
	Name     string
	Status   string
	Critical bool
	Err      error
}

// Report is the outcome of a Run.
type Report struct {
	Healthy bool
	Results []Result // Sorted by name
}

// Statuses returns the per-check status keyed by name.
func (r Report) Statuses() map[string]string {
	out := make(map[string]string, len(r.Results))
	for _, res := range r.Results {
		out[res.Name] = res.Status
	}
	return out
}

// Run executes all checks concurrently, each bounded by timeout.
func Run(ctx context.Context, timeout time.Duration, checks []Check) Report {
	var (
		mu      sync.Mutex
		g       errgroup.Group
		results = make([]Result, 0, len(checks))
	)
	for _, c := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			res := Result{Name: c.Name, Status: StatusOK, Critical: c.Critical}
			if err := c.Checker.HealthCheck(checkCtx); err != nil {
				res.Err = err
				res.Status = StatusError
				if !c.Critical {
					res.Status = StatusPending
				}
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	report := Report{Healthy: true, Results: results}
	for _, res := range results {
		if res.Critical && res.Err != nil {
			report.Healthy = false
		}
	}
	return report
}
