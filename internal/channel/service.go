package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/chathubhq/chathub/internal/db"
	"github.com/chathubhq/chathub/internal/platform"
)

// ErrNotFound is returned when no channel matches the lookup.
var ErrNotFound = errors.New("channel: not found")

// Service persists channel registrations.
type Service struct {
	q      db.Querier
	logger *slog.Logger
}

// NewService creates a channel service.
func NewService(q db.Querier, logger *slog.Logger) *Service {
	return &Service{
		q:      q,
		logger: logger.With(slog.String("service", "channel")),
	}
}

const channelColumns = `id, COALESCE(tenant_id, ''), platform, external_id,
	COALESCE(display_name, ''), status, last_activity_at, created_at, updated_at`

// GetOrCreate resolves the channel for (tenantID, platformType, externalID),
// creating it on first contact. Concurrent first contacts race on the
// unique index; the loser re-fetches. Activity is stamped on every call.
func (s *Service) GetOrCreate(ctx context.Context, tenantID string, platformType platform.Type, externalID, displayName string) (Channel, error) {
	if externalID == "" {
		return Channel{}, fmt.Errorf("channel: external id is required")
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO channels (tenant_id, platform, external_id, display_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (COALESCE(tenant_id, ''), platform, external_id)
		DO UPDATE SET
			last_activity_at = now(),
			updated_at = now(),
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), channels.display_name)
		RETURNING `+channelColumns,
		db.ToPgText(tenantID), platformType.String(), externalID, db.ToPgText(displayName),
	)
	ch, err := scanChannel(row)
	if err != nil {
		return Channel{}, fmt.Errorf("get or create channel: %w", err)
	}
	return ch, nil
}

// Get returns a channel by id.
func (s *Service) Get(ctx context.Context, id string) (Channel, error) {
	uuid, err := db.ParseUUID(id)
	if err != nil {
		return Channel{}, ErrNotFound
	}
	row := s.q.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, uuid)
	ch, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Channel{}, ErrNotFound
	}
	if err != nil {
		return Channel{}, fmt.Errorf("get channel: %w", err)
	}
	return ch, nil
}

// ListByTenant returns the tenant's channels, most recently active first.
func (s *Service) ListByTenant(ctx context.Context, tenantID string) ([]Channel, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+channelColumns+`
		FROM channels
		WHERE COALESCE(tenant_id, '') = $1
		ORDER BY last_activity_at DESC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var items []Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		items = append(items, ch)
	}
	return items, rows.Err()
}

// Deactivate marks a channel inactive. Webhook traffic for an inactive
// channel is still ingested; the flag is for operator UIs.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	uuid, err := db.ParseUUID(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE channels SET status = $2, updated_at = now() WHERE id = $1`,
		uuid, StatusInactive,
	)
	if err != nil {
		return fmt.Errorf("deactivate channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Info("channel deactivated", slog.String("channel_id", id))
	return nil
}

func scanChannel(row pgx.Row) (Channel, error) {
	var ch Channel
	var platformType string
	err := row.Scan(
		&ch.ID, &ch.TenantID, &platformType, &ch.ExternalID,
		&ch.DisplayName, &ch.Status, &ch.LastActivityAt, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return Channel{}, err
	}
	ch.Platform = platform.Type(platformType)
	return ch, nil
}
