package message

import "github.com/chathubhq/chathub/internal/platform"

// Outbound delivery statuses. Inbound messages are stored as DELIVERED;
// the lifecycle below applies to operator replies.
const (
	StatusQueued    = platform.StatusQueued
	StatusSent      = platform.StatusSent
	StatusDelivered = platform.StatusDelivered
	StatusRead      = platform.StatusRead
	StatusFailed    = platform.StatusFailed
)

// transitions is the exact adjacency of the delivery lifecycle. One step
// at a time; a receipt that skips a step is rejected, not collapsed.
// READ and FAILED are terminal.
var transitions = map[string]map[string]bool{
	StatusQueued:    {StatusSent: true, StatusFailed: true},
	StatusSent:      {StatusDelivered: true, StatusFailed: true},
	StatusDelivered: {StatusRead: true},
}

// CanTransition reports whether a status change is legal.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// ValidStatus reports whether s is a known delivery status.
func ValidStatus(s string) bool {
	switch s {
	case StatusQueued, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}
