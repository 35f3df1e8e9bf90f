// Package events publishes canonical message events to a RabbitMQ topic
// exchange so sibling services (CRM sync, analytics) can consume them.
// Publishing is best-effort: failures are logged and never block ingestion.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/chathubhq/chathub/internal/config"
	"github.com/chathubhq/chathub/internal/message"
)

// envelope wraps every published event with routing metadata.
type envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	TenantID   string          `json:"tenant_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    message.Message `json:"payload"`
}

// Publisher emits message events. A nil-channel publisher (disabled in
// config) is valid and publishes nothing.
type Publisher struct {
	exchange string
	enabled  bool
	logger   *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Enabled reports whether publishing was turned on in config.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// Connected reports whether the broker connection is live.
func (p *Publisher) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed()
}

// NewPublisher connects to the broker and declares the topic exchange.
// When cfg.Enabled is false it returns a disabled publisher and no error.
func NewPublisher(cfg config.EventsConfig, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{
		exchange: cfg.Exchange,
		enabled:  cfg.Enabled,
		logger:   logger.With(slog.String("service", "events")),
	}
	if !cfg.Enabled {
		return p, nil
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	p.conn = conn
	p.ch = ch
	p.logger.Info("event publisher connected", slog.String("exchange", cfg.Exchange))
	return p, nil
}

// MessagePersisted publishes a message.<platform>.<direction> event.
func (p *Publisher) MessagePersisted(ctx context.Context, msg message.Message) {
	key := fmt.Sprintf("message.%s.%s", msg.Platform, msg.Direction)
	p.publish(ctx, key, "message.persisted", msg)
}

// StatusChanged publishes a message.status.<status> event.
func (p *Publisher) StatusChanged(ctx context.Context, msg message.Message) {
	key := fmt.Sprintf("message.status.%s", msg.Status)
	p.publish(ctx, key, "message.status_changed", msg)
}

func (p *Publisher) publish(ctx context.Context, routingKey, eventType string, msg message.Message) {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch == nil {
		return
	}

	body, err := json.Marshal(envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		TenantID:   msg.TenantID,
		OccurredAt: time.Now().UTC(),
		Payload:    msg,
	})
	if err != nil {
		p.logger.Error("marshal event", slog.Any("error", err))
		return
	}

	err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.logger.Warn("publish failed",
			slog.String("routing_key", routingKey),
			slog.Any("error", err))
	}
}

// Close shuts the channel and connection down.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
