package platform

import (
	"context"
	"errors"
)

// ErrMalformedPayload is returned by Adapt when no usable draft can be
// extracted from a payload. Partially malformed payloads do not produce
// this error; individual bad fields degrade to defaults instead.
var ErrMalformedPayload = errors.New("platform: malformed payload")

// Adapt results for payloads that carry no conversational content (e.g., a
// pure delivery-receipt callback) are signalled with ErrNoMessages so the
// caller can acknowledge without persisting.
var ErrNoMessages = errors.New("platform: payload contains no messages")

// Adapter translates one platform-shaped webhook payload into canonical
// message drafts. Implementations are stateless and perform no I/O.
type Adapter interface {
	Type() Type

	// CanHandle reports whether the payload is structurally shaped like
	// this adapter's platform. Detection relies on platform-unique fields,
	// never on caller-supplied type tags.
	CanHandle(payload []byte) bool

	// Adapt extracts canonical drafts from the payload. A payload may carry
	// more than one message (WhatsApp batches them per webhook delivery).
	Adapt(payload []byte, tenantID string) ([]Draft, error)
}

// StatusReporter is an adapter whose platform delivers receipt callbacks
// alongside messages.
type StatusReporter interface {
	AdaptStatuses(payload []byte) []StatusUpdate
}

// Sender is the outbound capability for a platform: deliver content to a
// destination identity and return the platform-assigned message id.
type Sender interface {
	Send(ctx context.Context, to string, content string, attachments []Attachment) (string, error)
}
