// Package message persists canonical messages and runs the outbound
// delivery status machine.
package message

import (
	"time"

	"github.com/chathubhq/chathub/internal/platform"
)

// Message is one canonical message inside a thread. Seq is a monotonic
// insert counter used only as an ordering tie-break for equal sent_at.
type Message struct {
	ID                string                `json:"id"`
	Seq               int64                 `json:"-"`
	TenantID          string                `json:"tenant_id,omitempty"`
	ThreadID          string                `json:"thread_id"`
	Direction         platform.Direction    `json:"direction"`
	Platform          platform.Type         `json:"platform"`
	ExternalID        string                `json:"external_id,omitempty"`
	PlatformThreadID  string                `json:"platform_thread_id,omitempty"`
	Content           string                `json:"content"`
	Type              platform.MessageType  `json:"message_type"`
	SenderID          string                `json:"sender_id,omitempty"`
	SenderName        string                `json:"sender_name,omitempty"`
	SentAt            time.Time             `json:"sent_at"`
	DeliveredAt       *time.Time            `json:"delivered_at,omitempty"`
	ReadAt            *time.Time            `json:"read_at,omitempty"`
	Status            string                `json:"status"`
	Attachments       []platform.Attachment `json:"attachments,omitempty"`
	Metadata          map[string]any        `json:"metadata,omitempty"`
	ReplyToExternalID string                `json:"reply_to_external_id,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
}
