package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/workorder-service/internal/config"
	"github.com/spec-kit/workorder-service/internal/domain"
	"github.com/spec-kit/workorder-service/internal/events"
	"github.com/spec-kit/workorder-service/internal/lifecycle"
	"github.com/spec-kit/workorder-service/internal/observability"
	"github.com/spec-kit/workorder-service/internal/repository"
	apperrors "github.com/spec-kit/workorder-service/pkg/util/errorutil"
)

const (
	retryBaseDelay = time.Minute
	retryMaxDelay  = 30 * time.Minute
)

// Runner polls the persisted job table on a cron schedule, claims due jobs
// with a lease, and executes them. A job whose aggregate has moved on is
// marked done without effect; the job table is a reminder list, the work
// order row is the truth.
type Runner struct {
	jobs       repository.JobRepository
	orders     repository.WorkOrderRepository
	engine     *lifecycle.Engine
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	cron       *cron.Cron
	cfg        config.SchedulerConfig
	clock      func() time.Time
	logger     *zap.Logger
}

// NewRunner wires the runner. A nil clock defaults to time.Now.
func NewRunner(
	jobs repository.JobRepository,
	orders repository.WorkOrderRepository,
	engine *lifecycle.Engine,
	dispatcher events.Dispatcher,
	metrics *observability.Metrics,
	cfg config.SchedulerConfig,
	clock func() time.Time,
	logger *zap.Logger,
) *Runner {
	if clock == nil {
		clock = time.Now
	}
	return &Runner{
		jobs:       jobs,
		orders:     orders,
		engine:     engine,
		dispatcher: dispatcher,
		metrics:    metrics,
		cron:       cron.New(),
		cfg:        cfg,
		clock:      clock,
		logger:     logger,
	}
}

// Start registers the poll entry and starts the cron loop.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc(r.cfg.PollSchedule, r.Poll); err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", r.cfg.PollSchedule, err)
	}
	r.cron.Start()
	r.logger.Info("scheduler started", zap.String("poll_schedule", r.cfg.PollSchedule))
	return nil
}

// Stop halts the cron loop and waits for in-flight polls.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("scheduler stopped")
}

// Poll claims one batch of due jobs and executes them sequentially. Exported
// so a deployment can disable the cron loop and drive polling externally.
func (r *Runner) Poll() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.LockLifetime())
	defer cancel()

	now := r.clock()
	claimed, err := r.jobs.ClaimDue(ctx, now, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("claiming due jobs failed", zap.Error(err))
		return
	}
	for _, job := range claimed {
		r.run(ctx, job)
	}
}

func (r *Runner) run(ctx context.Context, job domain.ScheduledJob) {
	if job.ConcurrencyCap > 0 {
		running, err := r.jobs.CountRunning(ctx, job.Name)
		if err == nil && running > job.ConcurrencyCap {
			retryAt := r.clock().Add(retryBaseDelay)
			if err := r.jobs.MarkFailed(ctx, job.ID, r.clock(), &retryAt, "concurrency cap reached"); err != nil {
				r.logger.Error("requeueing capped job failed", zap.String("job_id", job.ID), zap.Error(err))
			}
			r.metrics.RecordJob(job.Name, "deferred")
			return
		}
	}

	var err error
	switch job.Name {
	case JobDeadlineApproaching:
		err = r.runDeadline(ctx, job, domain.TriggerApproaching)
	case JobDeadlineOverdue:
		err = r.runDeadline(ctx, job, domain.TriggerOverdue)
	case JobAutoClose:
		err = r.runAutoClose(ctx, job)
	default:
		r.logger.Warn("unknown job name, parking as failed",
			zap.String("job_id", job.ID), zap.String("name", job.Name))
		err = nil
		if markErr := r.jobs.MarkFailed(ctx, job.ID, r.clock(), nil, "unknown job name"); markErr != nil {
			r.logger.Error("parking unknown job failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		r.metrics.RecordJob(job.Name, "unknown")
		return
	}

	if err == nil {
		if markErr := r.jobs.MarkDone(ctx, job.ID, r.clock()); markErr != nil {
			r.logger.Error("marking job done failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		r.metrics.RecordJob(job.Name, "done")
		return
	}
	r.fail(ctx, job, err)
}

// runDeadline fires a deadline trigger once. The notified flags on the work
// order make replays idempotent even if the job row is executed twice.
func (r *Runner) runDeadline(ctx context.Context, job domain.ScheduledJob, trigger domain.TriggerKey) error {
	order, err := r.orders.GetByID(ctx, job.WorkOrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("deadline job for removed work order", zap.String("job_id", job.ID))
			return nil
		}
		return err
	}
	if order.Status != domain.StatusInProgress || order.PromisedBy == nil {
		return nil
	}

	switch trigger {
	case domain.TriggerApproaching:
		if order.ApproachingNotified {
			return nil
		}
		order.ApproachingNotified = true
	case domain.TriggerOverdue:
		if order.OverdueNotified {
			return nil
		}
		order.OverdueNotified = true
	}
	if err := r.orders.Update(ctx, order); err != nil {
		return err
	}

	r.dispatcher.Publish(ctx, events.Event{
		ID:          uuid.NewString(),
		Trigger:     trigger,
		WorkOrderID: order.ID,
		PerformerID: domain.SystemActorID,
		Order:       order,
		Data: map[string]any{
			"promised_by": order.PromisedBy.Format(time.RFC3339),
		},
		Timestamp: r.clock(),
	})
	r.logger.Info("deadline trigger fired",
		zap.String("trigger", string(trigger)),
		zap.String("work_order_id", order.ID))
	return nil
}

// runAutoClose re-enters the state machine as the system actor. A work order
// no longer in DONE, or already gone, makes the job a no-op.
func (r *Runner) runAutoClose(ctx context.Context, job domain.ScheduledJob) error {
	_, err := r.engine.ExecuteTransition(ctx, job.WorkOrderID, domain.ActionAutoClose,
		lifecycle.SystemPerformer, lifecycle.TransitionInput{})
	switch apperrors.CodeOf(err) {
	case "", "NOT_FOUND", "INVALID_TRANSITION", "DELETED":
		if err != nil {
			r.logger.Debug("auto-close job stale",
				zap.String("work_order_id", job.WorkOrderID),
				zap.String("code", apperrors.CodeOf(err)))
		}
		return nil
	default:
		return err
	}
}

// fail retries with exponential backoff until attempts are exhausted, then
// parks the job as FAILED for operator inspection.
func (r *Runner) fail(ctx context.Context, job domain.ScheduledJob, cause error) {
	now := r.clock()
	if job.Attempts >= job.MaxAttempts {
		if err := r.jobs.MarkFailed(ctx, job.ID, now, nil, cause.Error()); err != nil {
			r.logger.Error("parking failed job failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		r.metrics.RecordJob(job.Name, "failed")
		r.logger.Error("job exhausted retries",
			zap.String("job_id", job.ID),
			zap.String("name", job.Name),
			zap.Int("attempts", job.Attempts),
			zap.Error(cause))
		return
	}

	retryAt := now.Add(backoff(job.Attempts))
	if err := r.jobs.MarkFailed(ctx, job.ID, now, &retryAt, cause.Error()); err != nil {
		r.logger.Error("requeueing failed job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	r.metrics.RecordJob(job.Name, "retried")
	r.logger.Warn("job failed, will retry",
		zap.String("job_id", job.ID),
		zap.String("name", job.Name),
		zap.Int("attempts", job.Attempts),
		zap.Time("retry_at", retryAt),
		zap.Error(cause))
}

// backoff doubles per attempt from the base delay, capped.
func backoff(attempts int) time.Duration {
	delay := retryBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}
