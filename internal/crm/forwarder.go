// Package crm forwards persisted inbound messages to the external CRM.
// Forwarding is fire-and-forget: a CRM outage never affects ingestion or
// webhook acknowledgement.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chathubhq/chathub/internal/config"
	"github.com/chathubhq/chathub/internal/message"
)

// Forwarder posts message notifications to the CRM endpoint. A forwarder
// with no base URL (disabled in config) is valid and does nothing.
type Forwarder struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewForwarder creates a CRM forwarder.
func NewForwarder(cfg config.CRMConfig, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With(slog.String("service", "crm")),
	}
}

// Enabled reports whether a CRM endpoint is configured.
func (f *Forwarder) Enabled() bool {
	return f.baseURL != ""
}

// Forward posts one message to the CRM. Errors are logged, never returned;
// callers run this in a goroutine off the request path.
func (f *Forwarder) Forward(ctx context.Context, msg message.Message) {
	if !f.Enabled() {
		return
	}
	if err := f.post(ctx, msg); err != nil {
		f.logger.Warn("crm forward failed",
			slog.String("message_id", msg.ID),
			slog.String("thread_id", msg.ThreadID),
			slog.Any("error", err))
	}
}

func (f *Forwarder) post(ctx context.Context, msg message.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/crm/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.apiKey != "" {
		req.Header.Set("X-API-Key", f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("crm status %d", resp.StatusCode)
	}
	return nil
}
