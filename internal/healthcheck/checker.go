// Package healthcheck evaluates runtime dependency checks for the health
// endpoint.
package healthcheck

import (
	"context"
	"time"
)

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusWarn indicates check completed with warning.
	StatusWarn = "warn"
	// StatusError indicates check failed.
	StatusError = "error"
)

const checkTimeout = 3 * time.Second

// CheckResult is one runtime check item produced by a checker.
type CheckResult struct {
	Name   string         `json:"name"`
	Status string         `json:"status"`
	Detail string         `json:"detail,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Checker evaluates one runtime dependency.
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// Runner aggregates checkers into a single health report.
type Runner struct {
	checkers []Checker
}

// NewRunner creates a runner over the given checkers.
func NewRunner(checkers ...Checker) *Runner {
	return &Runner{checkers: checkers}
}

// Run evaluates every checker under a per-check timeout and returns the
// results plus the worst status seen.
func (r *Runner) Run(ctx context.Context) ([]CheckResult, string) {
	results := make([]CheckResult, 0, len(r.checkers))
	overall := StatusOK
	for _, checker := range r.checkers {
		if checker == nil {
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		result := checker.Check(checkCtx)
		cancel()
		results = append(results, result)
		if rank(result.Status) > rank(overall) {
			overall = result.Status
		}
	}
	return results, overall
}

func rank(status string) int {
	switch status {
	case StatusOK:
		return 0
	case StatusWarn:
		return 1
	default:
		return 2
	}
}
