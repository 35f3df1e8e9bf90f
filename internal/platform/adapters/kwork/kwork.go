// Package kwork adapts Kwork marketplace dialog messages and sends operator
// replies through the marketplace chat API.
package kwork

import (
	"encoding/json"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/chathubhq/chathub/internal/platform"
)

// Type is the Kwork platform identifier.
const Type = platform.TypeKwork

type dialogMessage struct {
	DialogID   json.Number `json:"dialog_id"`
	MessageID  json.Number `json:"message_id"`
	Text       string      `json:"text"`
	IsOwn      bool        `json:"is_own"`
	SenderID   json.Number `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	UnixTime   int64       `json:"unixtime"`
	Files      []file      `json:"files"`
	ReplyTo    json.Number `json:"reply_to"`
}

type file struct {
	Name string `json:"fname"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Adapter translates dialog message payloads. Kwork delivers either a
// single message object or a batch under a messages array.
type Adapter struct{}

// NewAdapter creates a Kwork adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Type returns the Kwork platform type.
func (a *Adapter) Type() platform.Type {
	return Type
}

// CanHandle detects the dialog message shape by its dialog_id field.
func (a *Adapter) CanHandle(payload []byte) bool {
	var probe struct {
		DialogID json.Number `json:"dialog_id"`
		Messages []struct {
			DialogID json.Number `json:"dialog_id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	if probe.DialogID.String() != "" {
		return true
	}
	return len(probe.Messages) > 0 && probe.Messages[0].DialogID.String() != ""
}

// Adapt converts a single message or a batch into drafts.
func (a *Adapter) Adapt(payload []byte, tenantID string) ([]platform.Draft, error) {
	var batch struct {
		Messages []dialogMessage `json:"messages"`
	}
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, platform.ErrMalformedPayload
	}

	messages := batch.Messages
	if len(messages) == 0 {
		var single dialogMessage
		if err := json.Unmarshal(payload, &single); err != nil {
			return nil, platform.ErrMalformedPayload
		}
		messages = []dialogMessage{single}
	}

	var drafts []platform.Draft
	for _, msg := range messages {
		draft, ok := adaptMessage(msg, tenantID)
		if !ok {
			continue
		}
		drafts = append(drafts, draft)
	}
	if len(drafts) == 0 {
		return nil, platform.ErrNoMessages
	}
	return drafts, nil
}

func adaptMessage(msg dialogMessage, tenantID string) (platform.Draft, bool) {
	dialogID := msg.DialogID.String()
	messageID := msg.MessageID.String()
	if dialogID == "" || messageID == "" {
		return platform.Draft{}, false
	}

	direction := platform.DirectionInbound
	if msg.IsOwn {
		direction = platform.DirectionOutbound
	}

	sentAt := time.Now().UTC()
	if msg.UnixTime > 0 {
		sentAt = time.Unix(msg.UnixTime, 0).UTC()
	}

	// The dialog is the conversation identity. sender_id flips between
	// the contact and the tenant's own account on is_own messages, so it
	// cannot key the thread.
	draft := platform.Draft{
		TenantID:          tenantID,
		Platform:          Type,
		ChannelExternalID: dialogID,
		ExternalID:        messageID,
		PlatformThreadID:  dialogID,
		Direction:         direction,
		ContactID:         dialogID,
		SenderID:          msg.SenderID.String(),
		SenderName:        strings.TrimSpace(msg.SenderName),
		Type:              platform.MessageText,
		Content:           strings.TrimSpace(msg.Text),
		SentAt:            sentAt,
		Metadata:          map[string]any{"dialog_id": dialogID},
	}
	if reply := msg.ReplyTo.String(); reply != "" && reply != "0" {
		draft.ReplyToExternalID = reply
	}

	for _, f := range msg.Files {
		t := classifyFile(f.Name)
		draft.Attachments = append(draft.Attachments, platform.Attachment{
			Type:        t,
			PlatformKey: f.URL,
			Mime:        mime.TypeByExtension(filepath.Ext(f.Name)),
			Name:        f.Name,
			Size:        f.Size,
		})
	}
	if len(draft.Attachments) > 0 {
		draft.Type = draft.Attachments[0].Type
		if draft.Content == "" {
			draft.Content = platform.PlaceholderContent(draft.Type, draft.Attachments[0].Name)
		}
	}
	return draft, true
}

// classifyFile maps a filename to a message type by extension. Kwork does
// not report mime types, only download names.
func classifyFile(name string) platform.MessageType {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "jpg", "jpeg", "png", "gif", "webp":
		return platform.MessageImage
	case "mp4", "mov", "avi", "mkv", "webm":
		return platform.MessageVideo
	case "mp3", "ogg", "wav", "m4a", "flac":
		return platform.MessageAudio
	default:
		return platform.MessageDocument
	}
}
