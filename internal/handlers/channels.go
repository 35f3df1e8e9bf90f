package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chathubhq/chathub/internal/auth"
	"github.com/chathubhq/chathub/internal/channel"
)

// ChannelService is the channel access the handler needs.
type ChannelService interface {
	Get(ctx context.Context, id string) (channel.Channel, error)
	ListByTenant(ctx context.Context, tenantID string) ([]channel.Channel, error)
	Deactivate(ctx context.Context, id string) error
}

// ChannelsHandler serves channel registrations to operator UIs.
type ChannelsHandler struct {
	channels ChannelService
	logger   *slog.Logger
}

// NewChannelsHandler creates a ChannelsHandler.
func NewChannelsHandler(log *slog.Logger, channels ChannelService) *ChannelsHandler {
	return &ChannelsHandler{
		channels: channels,
		logger:   log.With(slog.String("handler", "channels")),
	}
}

func (h *ChannelsHandler) Register(e *echo.Echo) {
	g := e.Group("/channels")
	g.GET("", h.List)
	g.POST("/:id/deactivate", h.Deactivate)
}

// List returns the tenant's channels, most recently active first.
func (h *ChannelsHandler) List(c echo.Context) error {
	items, err := h.channels.ListByTenant(c.Request().Context(), auth.TenantIDFromContext(c))
	if err != nil {
		h.logger.Error("list channels", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list channels")
	}
	if items == nil {
		items = []channel.Channel{}
	}
	return c.JSON(http.StatusOK, map[string]any{"channels": items})
}

// Deactivate marks a channel inactive.
func (h *ChannelsHandler) Deactivate(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	ch, err := h.channels.Get(c.Request().Context(), id)
	if errors.Is(err, channel.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "channel not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load channel")
	}
	if ch.TenantID != auth.TenantIDFromContext(c) {
		return echo.NewHTTPError(http.StatusNotFound, "channel not found")
	}

	if err := h.channels.Deactivate(c.Request().Context(), id); err != nil {
		h.logger.Error("deactivate channel", slog.String("channel_id", id), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to deactivate channel")
	}
	ch.Status = channel.StatusInactive
	return c.JSON(http.StatusOK, ch)
}
