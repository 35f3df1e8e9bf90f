// Package thread manages conversation threads: one per (tenant, channel,
// contact), carrying the unread counters and activity timestamps operator
// UIs sort by.
package thread

import "time"

// Thread statuses. Closed threads stay closed until an operator reopens
// them; inbound traffic does not change status.
const (
	StatusOpen     = "open"
	StatusPending  = "pending"
	StatusResolved = "resolved"
	StatusClosed   = "closed"
	StatusArchived = "archived"
	StatusSpam     = "spam"
)

// Priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Thread is one conversation with one contact on one channel.
type Thread struct {
	ID                    string     `json:"id"`
	TenantID              string     `json:"tenant_id,omitempty"`
	ChannelID             string     `json:"channel_id"`
	ContactID             string     `json:"contact_id"`
	ContactName           string     `json:"contact_name,omitempty"`
	Status                string     `json:"status"`
	Priority              string     `json:"priority"`
	AssignedTo            string     `json:"assigned_to,omitempty"`
	MessageCount          int64      `json:"message_count"`
	UnreadCount           int64      `json:"unread_count"`
	LastMessageAt         *time.Time `json:"last_message_at,omitempty"`
	LastCustomerMessageAt *time.Time `json:"last_customer_message_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// ValidStatus reports whether s is a known thread status.
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusPending, StatusResolved, StatusClosed, StatusArchived, StatusSpam:
		return true
	}
	return false
}
