package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/workorder-service/internal/domain"
)

// TriggerRepository reads the per-trigger notification routing table. The
// table is read once at startup; there is no runtime write path.
type TriggerRepository interface {
	ListAll(ctx context.Context) ([]domain.TriggerConfig, error)
}

type triggerRepository struct {
	pool *pgxpool.Pool
}

// NewTriggerRepository builds repository.
func NewTriggerRepository(pool *pgxpool.Pool) TriggerRepository {
	return &triggerRepository{pool: pool}
}

func (r *triggerRepository) ListAll(ctx context.Context) ([]domain.TriggerConfig, error) {
	const query = `
        SELECT key, enabled, template_type, policy_kind, recipient_role, exclude_performer
        FROM trigger_configs`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TriggerConfig
	for rows.Next() {
		var cfg domain.TriggerConfig
		if err := rows.Scan(
			&cfg.Key,
			&cfg.Enabled,
			&cfg.TemplateType,
			&cfg.Policy,
			&cfg.RecipientRole,
			&cfg.ExcludePerformer,
		); err != nil {
			return nil, err
		}
		result = append(result, cfg)
	}
	return result, rows.Err()
}
