package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/workorder-service/internal/domain"
)

// WorkOrderFilter captures listing parameters.
type WorkOrderFilter struct {
	RequesterID       *string
	DestinationUnitID *string
	HandlerID         *string
	Statuses          []domain.WorkOrderStatus
	CreatedFrom       *time.Time
	CreatedTo         *time.Time
	Limit             int
	Offset            int
}

// WorkOrderRepository encapsulates work order persistence.
type WorkOrderRepository interface {
	Create(ctx context.Context, order *domain.WorkOrder) error
	Update(ctx context.Context, order *domain.WorkOrder) error
	GetByID(ctx context.Context, id string) (*domain.WorkOrder, error)
	GetByCode(ctx context.Context, code string) (*domain.WorkOrder, error)
	HardDelete(ctx context.Context, id string) error
	ListWithFilter(ctx context.Context, filter WorkOrderFilter) ([]domain.WorkOrder, error)
	NextCode(ctx context.Context, year int) (string, error)
}

type workOrderRepository struct {
	pool *pgxpool.Pool
}

// NewWorkOrderRepository instantiates repository.
func NewWorkOrderRepository(pool *pgxpool.Pool) WorkOrderRepository {
	return &workOrderRepository{pool: pool}
}

const workOrderColumns = `id, code, requester_person_id, source_unit_id, destination_unit_id,
    receiver_mode, receiver_person_id, dispatcher_person_id, handler_person_id,
    category_id, category_snapshot, subject, description, status,
    created_at, dispatched_at, accepted_at, promised_by, completed_at, closed_at,
    reject_reason_id, reject_note, rating, rating_comment, late,
    approaching_notified, overdue_notified, reopen_count, deleted, updated_at`

// NextCode reserves the next sequential code for the given year.
func (r *workOrderRepository) NextCode(ctx context.Context, year int) (string, error) {
	const query = `
        INSERT INTO work_order_sequences (year, value) VALUES ($1, 1)
        ON CONFLICT (year) DO UPDATE SET value = work_order_sequences.value + 1
        RETURNING value`
	var value int64
	if err := r.pool.QueryRow(ctx, query, year).Scan(&value); err != nil {
		return "", err
	}
	return fmt.Sprintf("WO-%d-%06d", year, value), nil
}

func (r *workOrderRepository) Create(ctx context.Context, order *domain.WorkOrder) error {
	const query = `
        INSERT INTO work_orders (code, requester_person_id, source_unit_id, destination_unit_id,
            receiver_mode, receiver_person_id, dispatcher_person_id, handler_person_id,
            category_id, category_snapshot, subject, description, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		order.Code,
		order.RequesterID,
		order.SourceUnitID,
		order.DestinationUnitID,
		order.ReceiverMode,
		order.ReceiverPersonID,
		order.DispatcherID,
		order.HandlerID,
		order.CategoryID,
		order.Category,
		order.Subject,
		order.Description,
		order.Status,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

func (r *workOrderRepository) Update(ctx context.Context, order *domain.WorkOrder) error {
	const query = `
        UPDATE work_orders SET receiver_mode=$1, receiver_person_id=$2, dispatcher_person_id=$3,
            handler_person_id=$4, status=$5, dispatched_at=$6, accepted_at=$7, promised_by=$8,
            completed_at=$9, closed_at=$10, reject_reason_id=$11, reject_note=$12, rating=$13,
            rating_comment=$14, late=$15, approaching_notified=$16, overdue_notified=$17,
            reopen_count=$18, deleted=$19, updated_at=NOW()
        WHERE id=$20`
	cmd, err := r.pool.Exec(ctx, query,
		order.ReceiverMode,
		order.ReceiverPersonID,
		order.DispatcherID,
		order.HandlerID,
		order.Status,
		order.DispatchedAt,
		order.AcceptedAt,
		order.PromisedBy,
		order.CompletedAt,
		order.ClosedAt,
		order.RejectReasonID,
		order.RejectNote,
		order.Rating,
		order.RatingComment,
		order.Late,
		order.ApproachingNotified,
		order.OverdueNotified,
		order.ReopenCount,
		order.Deleted,
		order.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *workOrderRepository) GetByID(ctx context.Context, id string) (*domain.WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM work_orders WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *workOrderRepository) GetByCode(ctx context.Context, code string) (*domain.WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM work_orders WHERE code=$1`
	return r.fetchSingle(ctx, query, code)
}

func (r *workOrderRepository) HardDelete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM work_orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *workOrderRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.WorkOrder, error) {
	var order domain.WorkOrder
	if err := r.pool.QueryRow(ctx, query, arg).Scan(scanTargets(&order)...); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *workOrderRepository) ListWithFilter(ctx context.Context, filter WorkOrderFilter) ([]domain.WorkOrder, error) {
	base := `SELECT ` + workOrderColumns + ` FROM work_orders`
	clauses := []string{"deleted = FALSE"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_person_id=$%d", len(args)))
	}
	if filter.DestinationUnitID != nil {
		args = append(args, *filter.DestinationUnitID)
		clauses = append(clauses, fmt.Sprintf("destination_unit_id=$%d", len(args)))
	}
	if filter.HandlerID != nil {
		args = append(args, *filter.HandlerID)
		clauses = append(clauses, fmt.Sprintf("handler_person_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WorkOrder
	for rows.Next() {
		var order domain.WorkOrder
		if err := rows.Scan(scanTargets(&order)...); err != nil {
			return nil, err
		}
		result = append(result, order)
	}
	return result, rows.Err()
}

func scanTargets(order *domain.WorkOrder) []any {
	return []any{
		&order.ID,
		&order.Code,
		&order.RequesterID,
		&order.SourceUnitID,
		&order.DestinationUnitID,
		&order.ReceiverMode,
		&order.ReceiverPersonID,
		&order.DispatcherID,
		&order.HandlerID,
		&order.CategoryID,
		&order.Category,
		&order.Subject,
		&order.Description,
		&order.Status,
		&order.CreatedAt,
		&order.DispatchedAt,
		&order.AcceptedAt,
		&order.PromisedBy,
		&order.CompletedAt,
		&order.ClosedAt,
		&order.RejectReasonID,
		&order.RejectNote,
		&order.Rating,
		&order.RatingComment,
		&order.Late,
		&order.ApproachingNotified,
		&order.OverdueNotified,
		&order.ReopenCount,
		&order.Deleted,
		&order.UpdatedAt,
	}
}
