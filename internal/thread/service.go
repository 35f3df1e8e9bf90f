package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chathubhq/chathub/internal/db"
)

// ErrNotFound is returned when no thread matches the lookup.
var ErrNotFound = errors.New("thread: not found")

// Service persists threads and maintains their counters.
type Service struct {
	q      db.Querier
	logger *slog.Logger
}

// NewService creates a thread service.
func NewService(q db.Querier, logger *slog.Logger) *Service {
	return &Service{
		q:      q,
		logger: logger.With(slog.String("service", "thread")),
	}
}

const threadColumns = `id, COALESCE(tenant_id, ''), channel_id, contact_id,
	COALESCE(contact_name, ''), status, priority, COALESCE(assigned_to, ''),
	message_count, unread_count, last_message_at, last_customer_message_at,
	created_at, updated_at`

// Resolve returns the thread for (tenantID, channelID, contactID), creating
// it on first contact. A non-empty contactName refreshes the stored name.
func (s *Service) Resolve(ctx context.Context, tenantID, channelID, contactID, contactName string) (Thread, error) {
	if channelID == "" || contactID == "" {
		return Thread{}, fmt.Errorf("thread: channel id and contact id are required")
	}
	channelUUID, err := db.ParseUUID(channelID)
	if err != nil {
		return Thread{}, fmt.Errorf("thread: %w", err)
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO threads (tenant_id, channel_id, contact_id, contact_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (COALESCE(tenant_id, ''), channel_id, contact_id)
		DO UPDATE SET
			updated_at = now(),
			contact_name = COALESCE(NULLIF(EXCLUDED.contact_name, ''), threads.contact_name)
		RETURNING `+threadColumns,
		db.ToPgText(tenantID), channelUUID, contactID, db.ToPgText(contactName),
	)
	th, err := scanThread(row)
	if err != nil {
		return Thread{}, fmt.Errorf("resolve thread: %w", err)
	}
	return th, nil
}

// RecordInbound advances the counters for one persisted inbound message.
// GREATEST keeps timestamps monotonic when platforms deliver out of order.
func (s *Service) RecordInbound(ctx context.Context, threadID string, sentAt time.Time) error {
	uuid, err := db.ParseUUID(threadID)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE threads SET
			message_count = message_count + 1,
			unread_count = unread_count + 1,
			last_message_at = GREATEST(COALESCE(last_message_at, $2), $2),
			last_customer_message_at = GREATEST(COALESCE(last_customer_message_at, $2), $2),
			updated_at = now()
		WHERE id = $1`,
		uuid, sentAt,
	)
	if err != nil {
		return fmt.Errorf("record inbound: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordOutbound advances the counters for one persisted outbound message.
// Outbound traffic never touches unread_count or the customer timestamp.
func (s *Service) RecordOutbound(ctx context.Context, threadID string, sentAt time.Time) error {
	uuid, err := db.ParseUUID(threadID)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE threads SET
			message_count = message_count + 1,
			last_message_at = GREATEST(COALESCE(last_message_at, $2), $2),
			updated_at = now()
		WHERE id = $1`,
		uuid, sentAt,
	)
	if err != nil {
		return fmt.Errorf("record outbound: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRead zeroes the unread counter. The per-message read stamps are
// written by the message store in the same request.
func (s *Service) MarkRead(ctx context.Context, threadID string) error {
	uuid, err := db.ParseUUID(threadID)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE threads SET unread_count = 0, updated_at = now() WHERE id = $1`,
		uuid,
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus is the only status mutator. Inbound messages on a closed
// thread do not reopen it.
func (s *Service) SetStatus(ctx context.Context, threadID, status string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("thread: invalid status %q", status)
	}
	uuid, err := db.ParseUUID(threadID)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE threads SET status = $2, updated_at = now() WHERE id = $1`,
		uuid, status,
	)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Info("thread status changed",
		slog.String("thread_id", threadID),
		slog.String("status", status))
	return nil
}

// Get returns a thread by id.
func (s *Service) Get(ctx context.Context, id string) (Thread, error) {
	uuid, err := db.ParseUUID(id)
	if err != nil {
		return Thread{}, ErrNotFound
	}
	row := s.q.QueryRow(ctx, `SELECT `+threadColumns+` FROM threads WHERE id = $1`, uuid)
	th, err := scanThread(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Thread{}, ErrNotFound
	}
	if err != nil {
		return Thread{}, fmt.Errorf("get thread: %w", err)
	}
	return th, nil
}

// ListByTenant returns a page of the tenant's threads ordered by recent
// activity. status and assignedTo filter when non-empty.
func (s *Service) ListByTenant(ctx context.Context, tenantID, status, assignedTo string, limit, offset int) ([]Thread, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+threadColumns+`
		FROM threads
		WHERE COALESCE(tenant_id, '') = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR COALESCE(assigned_to, '') = $3)
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT $4 OFFSET $5`,
		tenantID, status, assignedTo, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var items []Thread
	for rows.Next() {
		th, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		items = append(items, th)
	}
	return items, rows.Err()
}

func scanThread(row pgx.Row) (Thread, error) {
	var th Thread
	err := row.Scan(
		&th.ID, &th.TenantID, &th.ChannelID, &th.ContactID,
		&th.ContactName, &th.Status, &th.Priority, &th.AssignedTo,
		&th.MessageCount, &th.UnreadCount, &th.LastMessageAt, &th.LastCustomerMessageAt,
		&th.CreatedAt, &th.UpdatedAt,
	)
	if err != nil {
		return Thread{}, err
	}
	return th, nil
}
