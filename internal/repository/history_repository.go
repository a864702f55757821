package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/workorder-service/internal/domain"
)

// HistoryRepository stores append-only audit entries. Entries are never
// updated or deleted; the rate-limit guards count them.
type HistoryRepository interface {
	Create(ctx context.Context, entry *domain.HistoryEntry) error
	ListByWorkOrder(ctx context.Context, workOrderID string, limit, offset int) ([]domain.HistoryEntry, error)
	CountSince(ctx context.Context, workOrderID, performerID string, action domain.Action, since time.Time) (int, error)
}

type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository builds repository.
func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepository{pool: pool}
}

func (r *historyRepository) Create(ctx context.Context, entry *domain.HistoryEntry) error {
	const query = `
        INSERT INTO work_order_history (work_order_id, action, performer_id, from_status, to_status, old_value, new_value, note)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.WorkOrderID,
		entry.Action,
		entry.PerformerID,
		entry.FromStatus,
		entry.ToStatus,
		entry.OldValue,
		entry.NewValue,
		entry.Note,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *historyRepository) ListByWorkOrder(ctx context.Context, workOrderID string, limit, offset int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, work_order_id, action, performer_id, from_status, to_status, old_value, new_value, note, created_at
        FROM work_order_history WHERE work_order_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, workOrderID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.HistoryEntry
	for rows.Next() {
		var entry domain.HistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.WorkOrderID,
			&entry.Action,
			&entry.PerformerID,
			&entry.FromStatus,
			&entry.ToStatus,
			&entry.OldValue,
			&entry.NewValue,
			&entry.Note,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// CountSince feeds the REMIND/ESCALATE rate-limit guards.
func (r *historyRepository) CountSince(ctx context.Context, workOrderID, performerID string, action domain.Action, since time.Time) (int, error) {
	const query = `
        SELECT COUNT(*) FROM work_order_history
        WHERE work_order_id=$1 AND performer_id=$2 AND action=$3 AND created_at >= $4`
	var count int
	err := r.pool.QueryRow(ctx, query, workOrderID, performerID, action, since).Scan(&count)
	return count, err
}
