package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/workorder-service/internal/domain"
)

// JobRepository persists scheduler jobs. The claim protocol is a single
// UPDATE ... SKIP LOCKED pass so concurrent worker processes never run the
// same job inside one lock lifetime.
type JobRepository interface {
	Create(ctx context.Context, job *domain.ScheduledJob) error
	CancelByWorkOrder(ctx context.Context, workOrderID string, names ...string) error
	ClaimDue(ctx context.Context, now time.Time, batchSize int) ([]domain.ScheduledJob, error)
	MarkDone(ctx context.Context, jobID string, at time.Time) error
	MarkFailed(ctx context.Context, jobID string, at time.Time, retryAt *time.Time, lastError string) error
	CountRunning(ctx context.Context, name string) (int, error)
}

type jobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository builds repository.
func NewJobRepository(pool *pgxpool.Pool) JobRepository {
	return &jobRepository{pool: pool}
}

func (r *jobRepository) Create(ctx context.Context, job *domain.ScheduledJob) error {
	const query = `
        INSERT INTO scheduled_jobs (name, work_order_id, payload, run_at, lock_lifetime_s,
            concurrency_cap, max_attempts, next_run_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		job.Name,
		job.WorkOrderID,
		job.Payload,
		job.RunAt,
		int(job.LockLifetime.Seconds()),
		job.ConcurrencyCap,
		job.MaxAttempts,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
}

// CancelByWorkOrder cancels pending jobs for a work order; with no names it
// cancels every pending job for the aggregate.
func (r *jobRepository) CancelByWorkOrder(ctx context.Context, workOrderID string, names ...string) error {
	if len(names) == 0 {
		const query = `
            UPDATE scheduled_jobs SET status='CANCELLED', updated_at=NOW()
            WHERE work_order_id=$1 AND status='PENDING'`
		_, err := r.pool.Exec(ctx, query, workOrderID)
		return err
	}
	const query = `
        UPDATE scheduled_jobs SET status='CANCELLED', updated_at=NOW()
        WHERE work_order_id=$1 AND name = ANY($2) AND status='PENDING'`
	_, err := r.pool.Exec(ctx, query, workOrderID, names)
	return err
}

// ClaimDue atomically leases due jobs. A RUNNING job whose locked_until has
// passed is treated as abandoned and re-leased.
func (r *jobRepository) ClaimDue(ctx context.Context, now time.Time, batchSize int) ([]domain.ScheduledJob, error) {
	if batchSize <= 0 {
		batchSize = 20
	}
	const query = `
        UPDATE scheduled_jobs SET status='RUNNING', attempts = attempts + 1,
            locked_until = $1 + make_interval(secs => lock_lifetime_s),
            last_run_at = $1, updated_at = NOW()
        WHERE id IN (
            SELECT id FROM scheduled_jobs
            WHERE (status='PENDING' AND run_at <= $1)
               OR (status='RUNNING' AND locked_until <= $1)
            ORDER BY run_at
            LIMIT $2
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id, name, work_order_id, payload, run_at, lock_lifetime_s, concurrency_cap,
            status, attempts, max_attempts, locked_until, last_run_at, next_run_at, last_error,
            created_at, updated_at`
	rows, err := r.pool.Query(ctx, query, now, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ScheduledJob
	for rows.Next() {
		var job domain.ScheduledJob
		var lockSeconds int
		if err := rows.Scan(
			&job.ID,
			&job.Name,
			&job.WorkOrderID,
			&job.Payload,
			&job.RunAt,
			&lockSeconds,
			&job.ConcurrencyCap,
			&job.Status,
			&job.Attempts,
			&job.MaxAttempts,
			&job.LockedUntil,
			&job.LastRunAt,
			&job.NextRunAt,
			&job.LastError,
			&job.CreatedAt,
			&job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		job.LockLifetime = time.Duration(lockSeconds) * time.Second
		result = append(result, job)
	}
	return result, rows.Err()
}

func (r *jobRepository) MarkDone(ctx context.Context, jobID string, at time.Time) error {
	const query = `
        UPDATE scheduled_jobs SET status='DONE', locked_until=NULL, next_run_at=NULL,
            last_run_at=$1, updated_at=NOW()
        WHERE id=$2`
	_, err := r.pool.Exec(ctx, query, at, jobID)
	return err
}

// MarkFailed records a failure; with a retry time the job goes back to
// PENDING, otherwise it is parked as FAILED.
func (r *jobRepository) MarkFailed(ctx context.Context, jobID string, at time.Time, retryAt *time.Time, lastError string) error {
	if retryAt != nil {
		const query = `
            UPDATE scheduled_jobs SET status='PENDING', locked_until=NULL, run_at=$1,
                next_run_at=$1, last_run_at=$2, last_error=$3, updated_at=NOW()
            WHERE id=$4`
		_, err := r.pool.Exec(ctx, query, *retryAt, at, lastError, jobID)
		return err
	}
	const query = `
        UPDATE scheduled_jobs SET status='FAILED', locked_until=NULL, next_run_at=NULL,
            last_run_at=$1, last_error=$2, updated_at=NOW()
        WHERE id=$3`
	_, err := r.pool.Exec(ctx, query, at, lastError, jobID)
	return err
}

// CountRunning feeds the per-name concurrency cap.
func (r *jobRepository) CountRunning(ctx context.Context, name string) (int, error) {
	const query = `
        SELECT COUNT(*) FROM scheduled_jobs
        WHERE name=$1 AND status='RUNNING' AND locked_until > NOW()`
	var count int
	err := r.pool.QueryRow(ctx, query, name).Scan(&count)
	return count, err
}
