package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/chathubhq/chathub/internal/db"
	"github.com/chathubhq/chathub/internal/platform"
)

// ErrNotFound is returned when no message matches the lookup.
var ErrNotFound = errors.New("message: not found")

// ErrBadTransition is returned when a status update would move the
// delivery lifecycle backwards or out of a terminal state.
var ErrBadTransition = errors.New("message: illegal status transition")

// Store persists canonical messages.
type Store struct {
	q      db.Querier
	logger *slog.Logger
}

// NewStore creates a message store.
func NewStore(q db.Querier, logger *slog.Logger) *Store {
	return &Store{
		q:      q,
		logger: logger.With(slog.String("service", "message")),
	}
}

const messageColumns = `id, seq, COALESCE(tenant_id, ''), thread_id, direction,
	platform, COALESCE(external_id, ''), COALESCE(platform_thread_id, ''),
	content, message_type, COALESCE(sender_id, ''), COALESCE(sender_name, ''),
	sent_at, delivered_at, read_at, status, attachments, metadata,
	COALESCE(reply_to_external_id, ''), created_at`

// Save persists a message idempotently. A duplicate (tenant, platform,
// external id) leaves the stored row untouched; the existing row is
// returned with created=false.
func (s *Store) Save(ctx context.Context, msg Message) (Message, bool, error) {
	threadUUID, err := db.ParseUUID(msg.ThreadID)
	if err != nil {
		return Message{}, false, fmt.Errorf("message: %w", err)
	}
	attachments, err := json.Marshal(normalizeAttachments(msg.Attachments))
	if err != nil {
		return Message{}, false, fmt.Errorf("marshal attachments: %w", err)
	}
	metadata, err := json.Marshal(normalizeMetadata(msg.Metadata))
	if err != nil {
		return Message{}, false, fmt.Errorf("marshal metadata: %w", err)
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO messages (
			tenant_id, thread_id, direction, platform, external_id,
			platform_thread_id, content, message_type, sender_id, sender_name,
			sent_at, status, attachments, metadata, reply_to_external_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (COALESCE(tenant_id, ''), platform, external_id)
			WHERE external_id IS NOT NULL
		DO NOTHING
		RETURNING `+messageColumns,
		db.ToPgText(msg.TenantID), threadUUID, string(msg.Direction),
		msg.Platform.String(), db.ToPgText(msg.ExternalID),
		db.ToPgText(msg.PlatformThreadID), msg.Content, string(msg.Type),
		db.ToPgText(msg.SenderID), db.ToPgText(msg.SenderName),
		msg.SentAt, msg.Status, attachments, metadata,
		db.ToPgText(msg.ReplyToExternalID),
	)

	saved, err := scanMessage(row)
	if err == nil {
		return saved, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Message{}, false, fmt.Errorf("save message: %w", err)
	}

	// Conflict: the row already exists, fetch it.
	existing, err := s.GetByExternalID(ctx, msg.TenantID, msg.Platform, msg.ExternalID)
	if err != nil {
		return Message{}, false, fmt.Errorf("fetch duplicate: %w", err)
	}
	return existing, false, nil
}

// Get returns a message by id.
func (s *Store) Get(ctx context.Context, id string) (Message, error) {
	uuid, err := db.ParseUUID(id)
	if err != nil {
		return Message{}, ErrNotFound
	}
	row := s.q.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, uuid)
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// GetByExternalID returns a message by its platform identity.
func (s *Store) GetByExternalID(ctx context.Context, tenantID string, platformType platform.Type, externalID string) (Message, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE COALESCE(tenant_id, '') = $1 AND platform = $2 AND external_id = $3`,
		tenantID, platformType.String(), externalID,
	)
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message by external id: %w", err)
	}
	return msg, nil
}

// ListByThread returns one page of a thread's messages in conversation
// order: sent_at ascending, insert order breaking ties.
func (s *Store) ListByThread(ctx context.Context, threadID string, page, size int) ([]Message, error) {
	uuid, err := db.ParseUUID(threadID)
	if err != nil {
		return nil, ErrNotFound
	}
	if page < 1 {
		page = 1
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE thread_id = $1
		ORDER BY sent_at ASC, seq ASC
		LIMIT $2 OFFSET $3`,
		uuid, size, (page-1)*size,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, msg)
	}
	return items, rows.Err()
}

// UpdateStatus advances the delivery status of a message. The transition
// table is enforced in SQL so concurrent receipts cannot move the status
// backwards.
func (s *Store) UpdateStatus(ctx context.Context, id, status string, at time.Time) (Message, error) {
	uuid, err := db.ParseUUID(id)
	if err != nil {
		return Message{}, ErrNotFound
	}
	return s.updateStatus(ctx, `id = $1`, []any{uuid}, status, at)
}

// UpdateStatusByExternalID advances the status of the message a delivery
// receipt refers to.
func (s *Store) UpdateStatusByExternalID(ctx context.Context, platformType platform.Type, externalID, status string, at time.Time) (Message, error) {
	return s.updateStatus(ctx, `platform = $1 AND external_id = $2`,
		[]any{platformType.String(), externalID}, status, at)
}

func (s *Store) updateStatus(ctx context.Context, where string, keyArgs []any, status string, at time.Time) (Message, error) {
	if !ValidStatus(status) {
		return Message{}, fmt.Errorf("message: invalid status %q", status)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	statusParam := fmt.Sprintf("$%d", len(keyArgs)+1)
	atParam := fmt.Sprintf("$%d", len(keyArgs)+2)
	sql := `
		UPDATE messages SET
			status = ` + statusParam + `,
			delivered_at = CASE WHEN ` + statusParam + ` = 'DELIVERED' THEN COALESCE(delivered_at, ` + atParam + `) ELSE delivered_at END,
			read_at = CASE WHEN ` + statusParam + ` = 'READ' THEN COALESCE(read_at, ` + atParam + `) ELSE read_at END
		WHERE ` + where + `
		  AND (
			(` + statusParam + ` = 'SENT' AND status = 'QUEUED')
			OR (` + statusParam + ` = 'DELIVERED' AND status = 'SENT')
			OR (` + statusParam + ` = 'READ' AND status = 'DELIVERED')
			OR (` + statusParam + ` = 'FAILED' AND status IN ('QUEUED', 'SENT'))
		  )
		RETURNING ` + messageColumns

	args := append(append([]any{}, keyArgs...), status, at)
	msg, err := scanMessage(s.q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, s.explainStatusMiss(ctx, where, keyArgs)
	}
	if err != nil {
		return Message{}, fmt.Errorf("update status: %w", err)
	}
	return msg, nil
}

// explainStatusMiss distinguishes a missing row from an illegal transition
// after a zero-row status update.
func (s *Store) explainStatusMiss(ctx context.Context, where string, keyArgs []any) error {
	var existing string
	err := s.q.QueryRow(ctx, `SELECT status FROM messages WHERE `+where, keyArgs...).Scan(&existing)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check status: %w", err)
	}
	return fmt.Errorf("%w: from %s", ErrBadTransition, existing)
}

// MarkSent records the platform-assigned external id on a queued outbound
// message and advances it to SENT. When the platform already echoed the
// reply through its webhook, the echo row holds the external id; the
// dispatcher row is canonical (its id went out in the API response and
// the fanout event), so the echo is absorbed and the update retried.
func (s *Store) MarkSent(ctx context.Context, id, externalID string) (Message, error) {
	uuid, err := db.ParseUUID(id)
	if err != nil {
		return Message{}, ErrNotFound
	}
	msg, err := s.markSentOnce(ctx, uuid, externalID)
	if db.IsUniqueViolation(err) {
		if dropErr := s.absorbEcho(ctx, uuid, externalID); dropErr != nil {
			return Message{}, dropErr
		}
		msg, err = s.markSentOnce(ctx, uuid, externalID)
	}
	return msg, err
}

func (s *Store) markSentOnce(ctx context.Context, id pgtype.UUID, externalID string) (Message, error) {
	row := s.q.QueryRow(ctx, `
		UPDATE messages SET status = $3, external_id = $2
		WHERE id = $1 AND status = $4
		RETURNING `+messageColumns,
		id, db.ToPgText(externalID), StatusSent, StatusQueued,
	)
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, s.explainStatusMiss(ctx, `id = $1`, []any{id})
	}
	if err != nil {
		return Message{}, fmt.Errorf("mark sent: %w", err)
	}
	return msg, nil
}

func (s *Store) absorbEcho(ctx context.Context, id pgtype.UUID, externalID string) error {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM messages USING messages orig
		WHERE orig.id = $1
		  AND messages.id <> orig.id
		  AND messages.platform = orig.platform
		  AND COALESCE(messages.tenant_id, '') = COALESCE(orig.tenant_id, '')
		  AND messages.external_id = $2`,
		id, db.ToPgText(externalID),
	)
	if err != nil {
		return fmt.Errorf("absorb echo: %w", err)
	}
	if tag.RowsAffected() > 0 {
		s.logger.Debug("absorbed webhook echo of dispatched message",
			slog.String("external_id", externalID))
	}
	return nil
}

// MarkThreadRead stamps read_at on the thread's unread inbound messages
// and returns how many were stamped.
func (s *Store) MarkThreadRead(ctx context.Context, threadID string, at time.Time) (int64, error) {
	uuid, err := db.ParseUUID(threadID)
	if err != nil {
		return 0, ErrNotFound
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE messages SET read_at = $2
		WHERE thread_id = $1 AND direction = $3 AND read_at IS NULL`,
		uuid, at, string(platform.DirectionInbound),
	)
	if err != nil {
		return 0, fmt.Errorf("mark thread read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var msg Message
	var direction, platformType, messageType string
	var attachments, metadata []byte
	err := row.Scan(
		&msg.ID, &msg.Seq, &msg.TenantID, &msg.ThreadID, &direction,
		&platformType, &msg.ExternalID, &msg.PlatformThreadID,
		&msg.Content, &messageType, &msg.SenderID, &msg.SenderName,
		&msg.SentAt, &msg.DeliveredAt, &msg.ReadAt, &msg.Status,
		&attachments, &metadata, &msg.ReplyToExternalID, &msg.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}
	msg.Direction = platform.Direction(direction)
	msg.Platform = platform.Type(platformType)
	msg.Type = platform.MessageType(messageType)
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return Message{}, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			return Message{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return msg, nil
}

func normalizeAttachments(items []platform.Attachment) []platform.Attachment {
	if items == nil {
		return []platform.Attachment{}
	}
	return items
}

func normalizeMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
