// Package channel manages platform channel registrations: the durable
// binding between a tenant and a platform account (bot, phone number,
// marketplace dialog).
package channel

import (
	"time"

	"github.com/chathubhq/chathub/internal/platform"
)

// Status of a channel registration.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Channel is a registered platform endpoint. ExternalID is the
// platform-side identity: a Telegram chat id, a WhatsApp phone number id,
// a Kwork dialog id.
type Channel struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenant_id,omitempty"`
	Platform       platform.Type `json:"platform"`
	ExternalID     string        `json:"external_id"`
	DisplayName    string        `json:"display_name,omitempty"`
	Status         string        `json:"status"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Active reports whether the channel accepts new traffic.
func (c Channel) Active() bool {
	return c.Status == StatusActive
}
