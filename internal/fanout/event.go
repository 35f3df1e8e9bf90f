// Package fanout pushes canonical message events to connected operator
// clients over WebSocket. Delivery is best-effort: a slow client loses
// events rather than stalling the pipeline.
package fanout

import (
	"time"

	"github.com/chathubhq/chathub/internal/message"
)

// Event types pushed to clients.
const (
	EventNewMessage    = "new_message"
	EventMessageStatus = "message_status"
	EventThreadRead    = "thread_read"
)

// Event is one fanout frame.
type Event struct {
	Type     string           `json:"type"`
	ThreadID string           `json:"thread_id,omitempty"`
	Message  *message.Message `json:"message,omitempty"`
	Status   *StatusChange    `json:"status,omitempty"`
	At       time.Time        `json:"at"`
}

// StatusChange describes a delivery status transition on an outbound
// message.
type StatusChange struct {
	MessageID  string `json:"message_id"`
	ExternalID string `json:"external_id,omitempty"`
	Status     string `json:"status"`
}

// NewMessageEvent builds a new_message frame.
func NewMessageEvent(msg message.Message) Event {
	return Event{
		Type:     EventNewMessage,
		ThreadID: msg.ThreadID,
		Message:  &msg,
		At:       time.Now().UTC(),
	}
}

// StatusEvent builds a message_status frame.
func StatusEvent(msg message.Message) Event {
	return Event{
		Type:     EventMessageStatus,
		ThreadID: msg.ThreadID,
		Status: &StatusChange{
			MessageID:  msg.ID,
			ExternalID: msg.ExternalID,
			Status:     msg.Status,
		},
		At: time.Now().UTC(),
	}
}

// ThreadReadEvent builds a thread_read frame.
func ThreadReadEvent(threadID string) Event {
	return Event{
		Type:     EventThreadRead,
		ThreadID: threadID,
		At:       time.Now().UTC(),
	}
}
