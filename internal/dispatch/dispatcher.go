// Package dispatch delivers operator replies back through the originating
// platform and runs the outbound status lifecycle.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chathubhq/chathub/internal/channel"
	"github.com/chathubhq/chathub/internal/fanout"
	"github.com/chathubhq/chathub/internal/message"
	"github.com/chathubhq/chathub/internal/platform"
	"github.com/chathubhq/chathub/internal/thread"
)

// ErrNoSender is returned when the channel's platform has no outbound
// capability configured.
var ErrNoSender = errors.New("dispatch: platform has no sender configured")

// ErrDeliveryFailed wraps a platform send failure. The message is already
// persisted as FAILED when this is returned.
var ErrDeliveryFailed = errors.New("dispatch: platform delivery failed")

// ThreadStore is the thread access the dispatcher needs.
type ThreadStore interface {
	Get(ctx context.Context, id string) (thread.Thread, error)
	RecordOutbound(ctx context.Context, threadID string, sentAt time.Time) error
}

// ChannelStore is the channel access the dispatcher needs.
type ChannelStore interface {
	Get(ctx context.Context, id string) (channel.Channel, error)
}

// MessageStore persists outbound messages and their status transitions.
type MessageStore interface {
	Save(ctx context.Context, msg message.Message) (message.Message, bool, error)
	MarkSent(ctx context.Context, id, externalID string) (message.Message, error)
	UpdateStatus(ctx context.Context, id, status string, at time.Time) (message.Message, error)
}

// Broadcaster fans events out to connected operator clients.
type Broadcaster interface {
	Publish(event fanout.Event, originSessionID string, scopes ...string)
}

// EventSink publishes message events to the broker.
type EventSink interface {
	MessagePersisted(ctx context.Context, msg message.Message)
	StatusChanged(ctx context.Context, msg message.Message)
}

// Request is one operator reply.
type Request struct {
	TenantID        string
	ThreadID        string
	OperatorID      string
	OperatorName    string
	Content         string
	Attachments     []platform.Attachment
	OriginSessionID string
}

// Dispatcher sends operator replies.
type Dispatcher struct {
	registry *platform.Registry
	threads  ThreadStore
	channels ChannelStore
	store    MessageStore
	hub      Broadcaster
	events   EventSink
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(
	registry *platform.Registry,
	threads ThreadStore,
	channels ChannelStore,
	store MessageStore,
	hub Broadcaster,
	events EventSink,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		threads:  threads,
		channels: channels,
		store:    store,
		hub:      hub,
		events:   events,
		logger:   logger.With(slog.String("service", "dispatch")),
	}
}

// Send persists the reply as QUEUED, attempts platform delivery, and
// settles the message to SENT or FAILED. The persisted message is fanned
// out to every subscriber except the operator's own session; a FAILED
// outcome is both persisted and returned as ErrDeliveryFailed.
func (d *Dispatcher) Send(ctx context.Context, req Request) (message.Message, error) {
	th, err := d.threads.Get(ctx, req.ThreadID)
	if err != nil {
		return message.Message{}, fmt.Errorf("resolve thread: %w", err)
	}
	ch, err := d.channels.Get(ctx, th.ChannelID)
	if err != nil {
		return message.Message{}, fmt.Errorf("resolve channel: %w", err)
	}
	sender, ok := d.registry.GetSender(ch.Platform)
	if !ok {
		return message.Message{}, fmt.Errorf("%w: %s", ErrNoSender, ch.Platform)
	}

	queued, _, err := d.store.Save(ctx, message.Message{
		TenantID:         req.TenantID,
		ThreadID:         th.ID,
		Direction:        platform.DirectionOutbound,
		Platform:         ch.Platform,
		PlatformThreadID: ch.ExternalID,
		Content:          req.Content,
		Type:             outboundType(req.Attachments),
		SenderID:         req.OperatorID,
		SenderName:       req.OperatorName,
		SentAt:           time.Now().UTC(),
		Status:           message.StatusQueued,
		Attachments:      req.Attachments,
	})
	if err != nil {
		return message.Message{}, fmt.Errorf("persist reply: %w", err)
	}
	if err := d.threads.RecordOutbound(ctx, th.ID, queued.SentAt); err != nil {
		return message.Message{}, fmt.Errorf("record counters: %w", err)
	}

	d.hub.Publish(fanout.NewMessageEvent(queued), req.OriginSessionID,
		fanout.TenantScope(queued.TenantID), fanout.ThreadScope(queued.ThreadID))
	d.events.MessagePersisted(ctx, queued)

	externalID, sendErr := sender.Send(ctx, destination(ch, th), req.Content, req.Attachments)
	if sendErr != nil {
		failed := d.settle(ctx, queued, "", sendErr)
		return failed, fmt.Errorf("%w: %v", ErrDeliveryFailed, sendErr)
	}
	return d.settle(ctx, queued, externalID, nil), nil
}

// settle moves a queued message to its final state and fans the status
// change out to everyone, the origin session included.
func (d *Dispatcher) settle(ctx context.Context, queued message.Message, externalID string, sendErr error) message.Message {
	var settled message.Message
	var err error
	if sendErr == nil {
		settled, err = d.store.MarkSent(ctx, queued.ID, externalID)
	} else {
		settled, err = d.store.UpdateStatus(ctx, queued.ID, message.StatusFailed, time.Now().UTC())
	}
	if err != nil {
		d.logger.Error("settle reply failed",
			slog.String("message_id", queued.ID),
			slog.Any("error", err))
		return queued
	}

	if sendErr != nil {
		d.logger.Warn("platform delivery failed",
			slog.String("message_id", settled.ID),
			slog.String("platform", settled.Platform.String()),
			slog.Any("error", sendErr))
	} else {
		d.logger.Info("reply delivered",
			slog.String("message_id", settled.ID),
			slog.String("external_id", settled.ExternalID))
	}

	d.hub.Publish(fanout.StatusEvent(settled), "",
		fanout.TenantScope(settled.TenantID), fanout.ThreadScope(settled.ThreadID))
	d.events.StatusChanged(ctx, settled)
	return settled
}

// destination picks the platform address: WhatsApp sends to the contact's
// wa_id, Telegram and Kwork send into the chat/dialog the channel is bound
// to.
func destination(ch channel.Channel, th thread.Thread) string {
	if ch.Platform == platform.TypeWhatsApp {
		return th.ContactID
	}
	return ch.ExternalID
}

func outboundType(attachments []platform.Attachment) platform.MessageType {
	if len(attachments) > 0 {
		return attachments[0].Type
	}
	return platform.MessageText
}
