// Package platform defines the canonical message draft model and the
// adapter contracts that translate platform payloads into it.
package platform

import (
	"strings"
	"time"
)

// Type identifies a messaging platform (e.g., "telegram", "whatsapp").
type Type string

const (
	TypeTelegram Type = "telegram"
	TypeWhatsApp Type = "whatsapp"
	TypeKwork    Type = "kwork"
)

// String returns the platform type as a plain string.
func (t Type) String() string {
	return string(t)
}

// Direction indicates who authored a message relative to the tenant.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageType classifies the content of a canonical message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageAudio    MessageType = "audio"
	MessageDocument MessageType = "document"
	MessageSticker  MessageType = "sticker"
	MessageLocation MessageType = "location"
	MessageContact  MessageType = "contact"
)

// Attachment references a platform-hosted media item attached to a message.
// PlatformKey is the opaque file reference on the originating platform.
type Attachment struct {
	Type        MessageType `json:"type"`
	PlatformKey string      `json:"platform_key,omitempty"`
	Mime        string      `json:"mime,omitempty"`
	Name        string      `json:"name,omitempty"`
	Size        int64       `json:"size,omitempty"`
}

// Draft is the platform-independent result of adapting one raw payload
// message. It carries everything the ingestion pipeline needs to resolve a
// channel, a thread, and persist a canonical message.
type Draft struct {
	TenantID          string
	Platform          Type
	ChannelExternalID string
	ExternalID        string
	PlatformThreadID  string
	Direction         Direction
	ContactID         string
	SenderID          string
	SenderName        string
	Type              MessageType
	Content           string
	Attachments       []Attachment
	SentAt            time.Time
	ReplyToExternalID string
	Metadata          map[string]any
}

// Canonical delivery statuses for outbound messages.
const (
	StatusQueued    = "QUEUED"
	StatusSent      = "SENT"
	StatusDelivered = "DELIVERED"
	StatusRead      = "READ"
	StatusFailed    = "FAILED"
)

// StatusUpdate is a delivery receipt adapted from a platform callback
// (e.g., WhatsApp statuses). It targets an already-persisted outbound
// message by its platform external id.
type StatusUpdate struct {
	Platform   Type
	ExternalID string
	Status     string
	OccurredAt time.Time
}

// PlaceholderContent synthesizes a human-readable content string for a
// media message without a caption. When a filename is recoverable it is
// included; otherwise a generic label per media kind is used.
func PlaceholderContent(t MessageType, filename string) string {
	filename = strings.TrimSpace(filename)
	switch t {
	case MessageImage:
		return "\U0001F4F7 Photo"
	case MessageVideo:
		return "\U0001F3AC Video"
	case MessageAudio:
		return "\U0001F3B5 Audio"
	case MessageDocument:
		if filename != "" {
			return "\U0001F4CE " + filename
		}
		return "\U0001F4CE Document"
	case MessageSticker:
		return "\U0001F9E9 Sticker"
	case MessageLocation:
		return "\U0001F4CD Location"
	case MessageContact:
		return "\U0001F464 Contact"
	default:
		return ""
	}
}
