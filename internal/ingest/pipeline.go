// Package ingest runs the webhook pipeline: adapt a raw platform payload,
// resolve its channel and thread, persist the canonical message once, and
// fan it out.
package ingest

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
	"github.com/chathubhq/chathub/internal/prune"
	"github.com/chathubhq/chathub/internal/thread"
)

// ChannelResolver resolves the durable channel registration for a payload.
type ChannelResolver interface {
	GetOrCreate(ctx context.Context, tenantID string, platformType platform.Type, externalID, displayName string) (channel.Channel, error)
}

// ThreadResolver resolves threads and maintains their counters.
type ThreadResolver interface {
	Resolve(ctx context.Context, tenantID, channelID, contactID, contactName string) (thread.Thread, error)
	RecordInbound(ctx context.Context, threadID string, sentAt time.Time) error
	RecordOutbound(ctx context.Context, threadID string, sentAt time.Time) error
}

// MessageStore persists canonical messages.
type MessageStore interface {
	Save(ctx context.Context, msg message.Message) (message.Message, bool, error)
	UpdateStatusByExternalID(ctx context.Context, platformType platform.Type, externalID, status string, at time.Time) (message.Message, error)
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

// CRMSink forwards inbound messages to the CRM.
type CRMSink interface {
	Enabled() bool
	Forward(ctx context.Context, msg message.Message)
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	registry *platform.Registry
	channels ChannelResolver
	threads  ThreadResolver
	store    MessageStore
	hub      Broadcaster
	events   EventSink
	crm      CRMSink
	logger   *slog.Logger
}

// NewPipeline creates the ingestion pipeline.
func NewPipeline(
	registry *platform.Registry,
	channels ChannelResolver,
	threads ThreadResolver,
	store MessageStore,
	hub Broadcaster,
	events EventSink,
	crm CRMSink,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		registry: registry,
		channels: channels,
		threads:  threads,
		store:    store,
		hub:      hub,
		events:   events,
		crm:      crm,
		logger:   logger.With(slog.String("service", "ingest")),
	}
}

// HandleWebhook processes one raw webhook delivery. platformType may be
// empty; the payload shape then selects the adapter. The returned error
// means "nothing usable was persisted"; transport handlers still
// acknowledge with 200 to stop platform retries.
func (p *Pipeline) HandleWebhook(ctx context.Context, platformType platform.Type, payload []byte, tenantID string) error {
	adapter, err := p.resolveAdapter(platformType, payload)
	if err != nil {
		return err
	}

	drafts, adaptErr := adapter.Adapt(payload, tenantID)
	if adaptErr != nil && !errors.Is(adaptErr, platform.ErrNoMessages) {
		return fmt.Errorf("adapt %s payload: %w", adapter.Type(), adaptErr)
	}

	var failed int
	for _, draft := range drafts {
		if err := p.processDraft(ctx, draft); err != nil {
			failed++
			p.logger.Error("persist draft failed",
				slog.String("platform", draft.Platform.String()),
				slog.String("external_id", draft.ExternalID),
				slog.Any("error", err))
		}
	}

	if reporter, ok := adapter.(platform.StatusReporter); ok {
		p.applyStatuses(ctx, reporter.AdaptStatuses(payload))
	}

	if failed > 0 {
		return fmt.Errorf("ingest: %d of %d messages failed", failed, len(drafts))
	}
	return nil
}

func (p *Pipeline) resolveAdapter(platformType platform.Type, payload []byte) (platform.Adapter, error) {
	if platformType != "" {
		adapter, ok := p.registry.Get(platformType)
		if !ok {
			return nil, fmt.Errorf("ingest: unsupported platform %q", platformType)
		}
		return adapter, nil
	}
	adapter, ok := p.registry.Detect(payload)
	if !ok {
		return nil, fmt.Errorf("ingest: no adapter recognizes payload: %w", platform.ErrMalformedPayload)
	}
	return adapter, nil
}

func (p *Pipeline) processDraft(ctx context.Context, draft platform.Draft) error {
	ch, err := p.channels.GetOrCreate(ctx, draft.TenantID, draft.Platform, draft.ChannelExternalID, "")
	if err != nil {
		return fmt.Errorf("resolve channel: %w", err)
	}

	contactName := ""
	if draft.Direction == platform.DirectionInbound {
		contactName = draft.SenderName
	}
	th, err := p.threads.Resolve(ctx, draft.TenantID, ch.ID, draft.ContactID, contactName)
	if err != nil {
		return fmt.Errorf("resolve thread: %w", err)
	}

	status := message.StatusDelivered
	if draft.Direction == platform.DirectionOutbound {
		status = message.StatusSent
	}
	saved, created, err := p.store.Save(ctx, message.Message{
		TenantID:          draft.TenantID,
		ThreadID:          th.ID,
		Direction:         draft.Direction,
		Platform:          draft.Platform,
		ExternalID:        draft.ExternalID,
		PlatformThreadID:  draft.PlatformThreadID,
		Content:           prune.Truncate(draft.Content, prune.Config{}),
		Type:              draft.Type,
		SenderID:          draft.SenderID,
		SenderName:        draft.SenderName,
		SentAt:            draft.SentAt,
		Status:            status,
		Attachments:       draft.Attachments,
		Metadata:          draft.Metadata,
		ReplyToExternalID: draft.ReplyToExternalID,
	})
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	if !created {
		p.logger.Debug("duplicate delivery absorbed",
			slog.String("platform", draft.Platform.String()),
			slog.String("external_id", draft.ExternalID))
		return nil
	}

	if draft.Direction == platform.DirectionInbound {
		err = p.threads.RecordInbound(ctx, th.ID, saved.SentAt)
	} else {
		err = p.threads.RecordOutbound(ctx, th.ID, saved.SentAt)
	}
	if err != nil {
		return fmt.Errorf("record counters: %w", err)
	}

	p.hub.Publish(fanout.NewMessageEvent(saved), "",
		fanout.TenantScope(saved.TenantID), fanout.ThreadScope(saved.ThreadID))
	p.events.MessagePersisted(ctx, saved)

	if draft.Direction == platform.DirectionInbound && p.crm.Enabled() {
		go p.crm.Forward(context.WithoutCancel(ctx), saved)
	}

	p.logger.Info("message ingested",
		slog.String("platform", saved.Platform.String()),
		slog.String("thread_id", saved.ThreadID),
		slog.String("direction", string(saved.Direction)))
	return nil
}

func (p *Pipeline) applyStatuses(ctx context.Context, updates []platform.StatusUpdate) {
	for _, update := range updates {
		msg, err := p.store.UpdateStatusByExternalID(ctx, update.Platform, update.ExternalID, update.Status, update.OccurredAt)
		if err != nil {
			if errors.Is(err, message.ErrNotFound) || errors.Is(err, message.ErrBadTransition) {
				p.logger.Debug("receipt skipped",
					slog.String("external_id", update.ExternalID),
					slog.String("status", update.Status),
					slog.Any("reason", err))
				continue
			}
			p.logger.Error("apply receipt failed",
				slog.String("external_id", update.ExternalID),
				slog.Any("error", err))
			continue
		}

		p.hub.Publish(fanout.StatusEvent(msg), "",
			fanout.TenantScope(msg.TenantID), fanout.ThreadScope(msg.ThreadID))
		p.events.StatusChanged(ctx, msg)
	}
}
