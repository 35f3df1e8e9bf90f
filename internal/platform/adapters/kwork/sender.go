package kwork

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chathubhq/chathub/internal/platform"
)

// Sender posts operator replies into a marketplace dialog.
type Sender struct {
	baseURL  string
	apiToken string
	client   *http.Client
}

// NewSender creates a Kwork chat sender.
func NewSender(baseURL, apiToken string) *Sender {
	return &Sender{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type sendRequest struct {
	Text  string   `json:"text"`
	Files []string `json:"files,omitempty"`
}

type sendResponse struct {
	Success   bool        `json:"success"`
	MessageID json.Number `json:"message_id"`
	Error     string      `json:"error"`
}

// Send posts content into the dialog identified by to and returns the
// created message id.
func (s *Sender) Send(ctx context.Context, to, content string, attachments []platform.Attachment) (string, error) {
	req := sendRequest{Text: content}
	for _, att := range attachments {
		if att.PlatformKey != "" {
			req.Files = append(req.Files, att.PlatformKey)
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("kwork marshal: %w", err)
	}

	url := fmt.Sprintf("%s/api/dialogs/%s/messages", s.baseURL, to)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("kwork request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.apiToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("kwork send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("kwork read response: %w", err)
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("kwork decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !parsed.Success {
		if parsed.Error != "" {
			return "", fmt.Errorf("kwork api error: %s", parsed.Error)
		}
		return "", fmt.Errorf("kwork api status %d", resp.StatusCode)
	}
	return parsed.MessageID.String(), nil
}
