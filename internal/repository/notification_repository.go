package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/workorder-service/internal/domain"
)

// NotificationRepository stores rendered notifications and per-account preferences.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, accountID string) error
	CountUnread(ctx context.Context, accountID string) (int64, error)
	GetPreference(ctx context.Context, accountID string) (*domain.NotificationPreference, error)
	UpsertPreference(ctx context.Context, pref *domain.NotificationPreference) error
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, notification *domain.Notification) error {
	const query = `
        INSERT INTO notifications (account_id, type, title, body, action_link, channels, priority, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		notification.AccountID,
		notification.Type,
		notification.Title,
		notification.Body,
		notification.ActionLink,
		channelStrings(notification.Channels),
		notification.Priority,
		notification.Metadata,
	).Scan(&notification.ID, &notification.CreatedAt)
}

func (r *notificationRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, account_id, type, title, body, action_link, channels, priority, read, read_at, metadata, created_at
        FROM notifications WHERE account_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var notification domain.Notification
		if err := rows.Scan(
			&notification.ID,
			&notification.AccountID,
			&notification.Type,
			&notification.Title,
			&notification.Body,
			&notification.ActionLink,
			&notification.Channels,
			&notification.Priority,
			&notification.Read,
			&notification.ReadAt,
			&notification.Metadata,
			&notification.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, notification)
	}
	return result, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, accountID string) error {
	const query = `
        UPDATE notifications SET read=TRUE, read_at=$1
        WHERE id=$2 AND account_id=$3 AND read=FALSE`
	cmd, err := r.pool.Exec(ctx, query, time.Now(), id, accountID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, accountID string) (int64, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE account_id=$1 AND read=FALSE`
	var count int64
	err := r.pool.QueryRow(ctx, query, accountID).Scan(&count)
	return count, err
}

// GetPreference returns nil without error when the account never saved preferences.
func (r *notificationRepository) GetPreference(ctx context.Context, accountID string) (*domain.NotificationPreference, error) {
	const query = `
        SELECT account_id, enabled, disabled_types, quiet_start_hour, quiet_end_hour, updated_at
        FROM notification_preferences WHERE account_id=$1`
	var pref domain.NotificationPreference
	err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&pref.AccountID,
		&pref.Enabled,
		&pref.DisabledTypes,
		&pref.QuietStartHour,
		&pref.QuietEndHour,
		&pref.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *notificationRepository) UpsertPreference(ctx context.Context, pref *domain.NotificationPreference) error {
	const query = `
        INSERT INTO notification_preferences (account_id, enabled, disabled_types, quiet_start_hour, quiet_end_hour, updated_at)
        VALUES ($1,$2,$3,$4,$5,NOW())
        ON CONFLICT (account_id) DO UPDATE SET enabled=$2, disabled_types=$3,
            quiet_start_hour=$4, quiet_end_hour=$5, updated_at=NOW()`
	_, err := r.pool.Exec(ctx, query,
		pref.AccountID,
		pref.Enabled,
		pref.DisabledTypes,
		pref.QuietStartHour,
		pref.QuietEndHour,
	)
	return err
}
