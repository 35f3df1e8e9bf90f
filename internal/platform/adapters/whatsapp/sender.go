package whatsapp

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

// DefaultAPIBaseURL is the Graph API endpoint for the Cloud API.
const DefaultAPIBaseURL = "https://graph.facebook.com/v20.0"

// Sender delivers operator replies through the Cloud API send endpoint.
type Sender struct {
	accessToken   string
	phoneNumberID string
	baseURL       string
	client        *http.Client
}

// NewSender creates a Cloud API sender. baseURL may be empty to use the
// production Graph API endpoint.
func NewSender(accessToken, phoneNumberID, baseURL string) *Sender {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	return &Sender{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

type sendRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *textContent `json:"text,omitempty"`
	Image            *mediaRef    `json:"image,omitempty"`
	Video            *mediaRef    `json:"video,omitempty"`
	Audio            *mediaRef    `json:"audio,omitempty"`
	Document         *mediaRef    `json:"document,omitempty"`
}

type textContent struct {
	Body string `json:"body"`
}

type mediaRef struct {
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts content to the wa_id identified by to and returns the Cloud
// API message id (wamid).
func (s *Sender) Send(ctx context.Context, to, content string, attachments []platform.Attachment) (string, error) {
	req := sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
	}
	if len(attachments) > 0 {
		att := attachments[0]
		ref := &mediaRef{ID: att.PlatformKey, Caption: content}
		switch att.Type {
		case platform.MessageImage:
			req.Type, req.Image = "image", ref
		case platform.MessageVideo:
			req.Type, req.Video = "video", ref
		case platform.MessageAudio:
			ref.Caption = ""
			req.Type, req.Audio = "audio", ref
		default:
			req.Type, req.Document = "document", ref
		}
	} else {
		req.Type = "text"
		req.Text = &textContent{Body: content}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp marshal: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("whatsapp request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("whatsapp read response: %w", err)
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("whatsapp decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || parsed.Error != nil {
		if parsed.Error != nil {
			return "", fmt.Errorf("whatsapp api error %d: %s", parsed.Error.Code, parsed.Error.Message)
		}
		return "", fmt.Errorf("whatsapp api status %d", resp.StatusCode)
	}
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return "", fmt.Errorf("whatsapp api returned no message id")
	}
	return parsed.Messages[0].ID, nil
}
