// Package postgres checks database connectivity for the health endpoint.
package postgres

import (
	"context"
	"log/slog"

	"github.com/chathubhq/chathub/internal/healthcheck"
)

// Pinger is the database handle surface the checker needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker pings the connection pool.
type Checker struct {
	pool   Pinger
	logger *slog.Logger
}

// NewChecker creates a postgres checker.
func NewChecker(log *slog.Logger, pool Pinger) *Checker {
	return &Checker{pool: pool, logger: log.With(slog.String("checker", "postgres"))}
}

func (c *Checker) Check(ctx context.Context) healthcheck.CheckResult {
	result := healthcheck.CheckResult{Name: "postgres", Status: healthcheck.StatusOK}
	if c.pool == nil {
		result.Status = healthcheck.StatusError
		result.Detail = "pool not configured"
		return result
	}
	if err := c.pool.Ping(ctx); err != nil {
		c.logger.Warn("ping failed", slog.Any("error", err))
		result.Status = healthcheck.StatusError
		result.Detail = err.Error()
	}
	return result
}
