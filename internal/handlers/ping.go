// Package handlers contains the echo HTTP handlers: webhook intake,
// operator thread API, and the WebSocket entry point.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chathubhq/chathub/internal/healthcheck"
	"github.com/chathubhq/chathub/internal/version"
)

type PingHandler struct {
	health *healthcheck.Runner
	logger *slog.Logger
}

func NewPingHandler(log *slog.Logger, health *healthcheck.Runner) *PingHandler {
	return &PingHandler{
		health: health,
		logger: log.With(slog.String("handler", "ping")),
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.GET("/health", h.Health)
	e.HEAD("/health", h.HealthHead)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// Health runs the dependency checks. A failed dependency reports 503 so
// load balancers rotate the node out.
func (h *PingHandler) Health(c echo.Context) error {
	checks, overall := h.health.Run(c.Request().Context())
	code := http.StatusOK
	if overall == healthcheck.StatusError {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{
		"status": overall,
		"checks": checks,
	})
}

func (h *PingHandler) HealthHead(c echo.Context) error {
	_, overall := h.health.Run(c.Request().Context())
	if overall == healthcheck.StatusError {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}
