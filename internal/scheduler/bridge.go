package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/workorder-service/internal/config"
	"github.com/spec-kit/workorder-service/internal/domain"
	"github.com/spec-kit/workorder-service/internal/repository"
)

// Job names. One row per (work order, name) is pending at a time; the
// lifecycle engine cancels and re-creates on reschedule.
const (
	JobDeadlineApproaching = "deadline_approaching"
	JobDeadlineOverdue     = "deadline_overdue"
	JobAutoClose           = "auto_close"
)

// Bridge translates lifecycle scheduling requests into persisted job rows.
// It implements lifecycle.DeadlineScheduler. Jobs survive restarts; nothing
// here holds in-process timers.
type Bridge struct {
	jobs   repository.JobRepository
	cfg    config.SchedulerConfig
	logger *zap.Logger
}

// NewBridge wires the bridge.
func NewBridge(jobs repository.JobRepository, cfg config.SchedulerConfig, logger *zap.Logger) *Bridge {
	return &Bridge{jobs: jobs, cfg: cfg, logger: logger}
}

// ScheduleDeadlineChecks persists the approaching and overdue jobs for the
// order's promised-by. A nil promised-by schedules nothing.
func (b *Bridge) ScheduleDeadlineChecks(ctx context.Context, order *domain.WorkOrder) error {
	if order.PromisedBy == nil {
		return nil
	}
	approachAt := order.PromisedBy.Add(-b.cfg.ApproachingLead())
	if err := b.create(ctx, JobDeadlineApproaching, order, approachAt); err != nil {
		return err
	}
	return b.create(ctx, JobDeadlineOverdue, order, *order.PromisedBy)
}

// CancelDeadlineChecks drops pending deadline jobs for the order.
func (b *Bridge) CancelDeadlineChecks(ctx context.Context, workOrderID string) error {
	return b.jobs.CancelByWorkOrder(ctx, workOrderID, JobDeadlineApproaching, JobDeadlineOverdue)
}

// ScheduleAutoClose persists the unattended-close job, anchored at completion.
func (b *Bridge) ScheduleAutoClose(ctx context.Context, order *domain.WorkOrder) error {
	anchor := time.Now()
	if order.CompletedAt != nil {
		anchor = *order.CompletedAt
	}
	return b.create(ctx, JobAutoClose, order, anchor.Add(b.cfg.AutoCloseAfter()))
}

// CancelAutoClose drops the pending auto-close job for the order.
func (b *Bridge) CancelAutoClose(ctx context.Context, workOrderID string) error {
	return b.jobs.CancelByWorkOrder(ctx, workOrderID, JobAutoClose)
}

func (b *Bridge) create(ctx context.Context, name string, order *domain.WorkOrder, runAt time.Time) error {
	job := &domain.ScheduledJob{
		Name:           name,
		WorkOrderID:    order.ID,
		Payload:        map[string]any{"code": order.Code},
		RunAt:          runAt,
		LockLifetime:   b.cfg.LockLifetime(),
		ConcurrencyCap: b.cfg.BatchSize,
		MaxAttempts:    b.cfg.MaxAttempts,
	}
	if err := b.jobs.Create(ctx, job); err != nil {
		return err
	}
	b.logger.Debug("job scheduled",
		zap.String("name", name),
		zap.String("work_order_id", order.ID),
		zap.Time("run_at", runAt))
	return nil
}
