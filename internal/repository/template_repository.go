package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/workorder-service/internal/domain"
)

// TemplateRepository stores notification templates.
type TemplateRepository interface {
	GetByType(ctx context.Context, templateType string) (*domain.NotificationTemplate, error)
	Create(ctx context.Context, template *domain.NotificationTemplate) error
	Update(ctx context.Context, template *domain.NotificationTemplate) error
	List(ctx context.Context, limit, offset int) ([]domain.NotificationTemplate, error)
	IncrementUsage(ctx context.Context, templateType string) error
}

type templateRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateRepository builds repository.
func NewTemplateRepository(pool *pgxpool.Pool) TemplateRepository {
	return &templateRepository{pool: pool}
}

const templateColumns = `id, type, title, body, channels, priority, action_link,
    required_vars, auto_created, usage_count, last_used_at, created_at, updated_at`

func (r *templateRepository) GetByType(ctx context.Context, templateType string) (*domain.NotificationTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM notification_templates WHERE type=$1`
	var template domain.NotificationTemplate
	if err := r.pool.QueryRow(ctx, query, templateType).Scan(templateScanTargets(&template)...); err != nil {
		return nil, err
	}
	return &template, nil
}

func (r *templateRepository) Create(ctx context.Context, template *domain.NotificationTemplate) error {
	const query = `
        INSERT INTO notification_templates (type, title, body, channels, priority, action_link, required_vars, auto_created)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (type) DO NOTHING
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		template.Type,
		template.Title,
		template.Body,
		channelStrings(template.Channels),
		template.Priority,
		template.ActionLink,
		template.RequiredVars,
		template.AutoCreated,
	).Scan(&template.ID, &template.CreatedAt, &template.UpdatedAt)
	if err == pgx.ErrNoRows {
		// Lost a concurrent auto-create race; the stored row wins.
		existing, getErr := r.GetByType(ctx, template.Type)
		if getErr != nil {
			return getErr
		}
		*template = *existing
		return nil
	}
	return err
}

func (r *templateRepository) Update(ctx context.Context, template *domain.NotificationTemplate) error {
	const query = `
        UPDATE notification_templates SET title=$1, body=$2, channels=$3, priority=$4,
            action_link=$5, required_vars=$6, auto_created=$7, updated_at=NOW()
        WHERE type=$8`
	cmd, err := r.pool.Exec(ctx, query,
		template.Title,
		template.Body,
		channelStrings(template.Channels),
		template.Priority,
		template.ActionLink,
		template.RequiredVars,
		template.AutoCreated,
		template.Type,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *templateRepository) List(ctx context.Context, limit, offset int) ([]domain.NotificationTemplate, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + templateColumns + ` FROM notification_templates ORDER BY type LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.NotificationTemplate
	for rows.Next() {
		var template domain.NotificationTemplate
		if err := rows.Scan(templateScanTargets(&template)...); err != nil {
			return nil, err
		}
		result = append(result, template)
	}
	return result, rows.Err()
}

// IncrementUsage bumps counters; callers treat failures as best-effort.
func (r *templateRepository) IncrementUsage(ctx context.Context, templateType string) error {
	const query = `
        UPDATE notification_templates SET usage_count = usage_count + 1, last_used_at = NOW()
        WHERE type=$1`
	_, err := r.pool.Exec(ctx, query, templateType)
	return err
}

func templateScanTargets(template *domain.NotificationTemplate) []any {
	return []any{
		&template.ID,
		&template.Type,
		&template.Title,
		&template.Body,
		&template.Channels,
		&template.Priority,
		&template.ActionLink,
		&template.RequiredVars,
		&template.AutoCreated,
		&template.UsageCount,
		&template.LastUsedAt,
		&template.CreatedAt,
		&template.UpdatedAt,
	}
}

func channelStrings(channels []domain.Channel) []string {
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		out = append(out, string(ch))
	}
	return out
}
