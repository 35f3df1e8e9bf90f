// Package broker checks the AMQP event publisher for the health endpoint.
package broker

import (
	"context"
	"log/slog"

	"github.com/chathubhq/chathub/internal/healthcheck"
)

// Publisher is the event publisher surface the checker needs.
type Publisher interface {
	Enabled() bool
	Connected() bool
}

// Checker reports the event broker connection state. A disabled publisher
// is a warning, not an error, so single-node deployments stay healthy.
type Checker struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewChecker creates a broker checker.
func NewChecker(log *slog.Logger, publisher Publisher) *Checker {
	return &Checker{publisher: publisher, logger: log.With(slog.String("checker", "broker"))}
}

func (c *Checker) Check(_ context.Context) healthcheck.CheckResult {
	result := healthcheck.CheckResult{Name: "broker", Status: healthcheck.StatusOK}
	switch {
	case c.publisher == nil || !c.publisher.Enabled():
		result.Status = healthcheck.StatusWarn
		result.Detail = "event publishing disabled"
	case !c.publisher.Connected():
		result.Status = healthcheck.StatusError
		result.Detail = "broker connection lost"
	}
	return result
}
