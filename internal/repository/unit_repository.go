package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/workorder-service/internal/domain"
)

// UnitRepository resolves organizational units and their dispatcher lists.
type UnitRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Unit, error)
	DispatcherIDs(ctx context.Context, unitID string) ([]string, error)
}

type unitRepository struct {
	pool *pgxpool.Pool
}

// NewUnitRepository instantiates repository.
func NewUnitRepository(pool *pgxpool.Pool) UnitRepository {
	return &unitRepository{pool: pool}
}

func (r *unitRepository) GetByID(ctx context.Context, id string) (*domain.Unit, error) {
	const query = `
        SELECT id, name, dispatcher_ids, active, created_at, updated_at
        FROM units WHERE id=$1`
	var unit domain.Unit
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&unit.ID,
		&unit.Name,
		&unit.DispatcherIDs,
		&unit.Active,
		&unit.CreatedAt,
		&unit.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *unitRepository) DispatcherIDs(ctx context.Context, unitID string) ([]string, error) {
	const query = `SELECT dispatcher_ids FROM units WHERE id=$1`
	var ids []string
	if err := r.pool.QueryRow(ctx, query, unitID).Scan(&ids); err != nil {
		return nil, err
	}
	return ids, nil
}
