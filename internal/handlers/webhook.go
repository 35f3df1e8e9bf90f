package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chathubhq/chathub/internal/platform"
	"github.com/chathubhq/chathub/internal/platform/adapters/whatsapp"
)

const maxWebhookBody = 1 << 20

// tenantHeader carries the tenant id on webhook deliveries. Absent means
// the single-tenant fallback.
const tenantHeader = "X-Tenant-ID"

// Ingestor runs the webhook pipeline.
type Ingestor interface {
	HandleWebhook(ctx context.Context, platformType platform.Type, payload []byte, tenantID string) error
}

// WebhookHandler receives platform callbacks. Responses are always 200 so
// platforms stop retrying; the body reports OK or ERROR for diagnostics.
type WebhookHandler struct {
	ingestor    Ingestor
	verifyToken string
	logger      *slog.Logger
}

// NewWebhookHandler creates a webhook handler. verifyToken is the WhatsApp
// hub subscription token.
func NewWebhookHandler(log *slog.Logger, ingestor Ingestor, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		ingestor:    ingestor,
		verifyToken: verifyToken,
		logger:      log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks", h.Receive)
	e.POST("/webhooks/:platform", h.Receive)
	e.GET("/webhooks/whatsapp", h.VerifyWhatsApp)
}

// Receive ingests one webhook delivery. The :platform segment is a hint;
// without it the payload shape selects the adapter.
func (h *WebhookHandler) Receive(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("read webhook body", slog.Any("error", err))
		return c.JSON(http.StatusOK, map[string]string{"status": "ERROR"})
	}

	platformHint := platform.Type(strings.ToLower(strings.TrimSpace(c.Param("platform"))))
	tenantID := strings.TrimSpace(c.Request().Header.Get(tenantHeader))

	if err := h.ingestor.HandleWebhook(c.Request().Context(), platformHint, payload, tenantID); err != nil {
		h.logger.Warn("webhook rejected",
			slog.String("platform", platformHint.String()),
			slog.Any("error", err))
		return c.JSON(http.StatusOK, map[string]string{"status": "ERROR"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "OK"})
}

// VerifyWhatsApp answers the Cloud API subscription handshake.
func (h *WebhookHandler) VerifyWhatsApp(c echo.Context) error {
	challenge, ok := whatsapp.VerifyChallenge(
		c.QueryParam("hub.mode"),
		c.QueryParam("hub.verify_token"),
		c.QueryParam("hub.challenge"),
		h.verifyToken,
	)
	if !ok {
		return c.String(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}
