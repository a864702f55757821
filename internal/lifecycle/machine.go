package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/workorder-service/internal/domain"
	"github.com/spec-kit/workorder-service/internal/events"
	"github.com/spec-kit/workorder-service/internal/repository"
	apperrors "github.com/spec-kit/workorder-service/pkg/util/errorutil"
)

// DeadlineScheduler persists deadline and auto-close jobs for a work order.
// Implemented by the scheduler package; defined here so the engine does not
// import it (the scheduler holds an Engine for AUTO_CLOSE re-entry).
type DeadlineScheduler interface {
	ScheduleDeadlineChecks(ctx context.Context, order *domain.WorkOrder) error
	CancelDeadlineChecks(ctx context.Context, workOrderID string) error
	ScheduleAutoClose(ctx context.Context, order *domain.WorkOrder) error
	CancelAutoClose(ctx context.Context, workOrderID string) error
}

// Engine executes work order lifecycle transitions: guard chain, mutation,
// persistence, audit history, job scheduling, then event publication. Events
// are published only after the mutation is durable.
type Engine struct {
	orders     repository.WorkOrderRepository
	history    repository.HistoryRepository
	categories repository.CategoryRepository
	units      repository.UnitRepository
	persons    repository.PersonRepository
	dispatcher events.Dispatcher
	scheduler  DeadlineScheduler
	clock      func() time.Time
	logger     *zap.Logger
}

// NewEngine wires the engine. A nil clock defaults to time.Now.
func NewEngine(
	orders repository.WorkOrderRepository,
	history repository.HistoryRepository,
	categories repository.CategoryRepository,
	units repository.UnitRepository,
	persons repository.PersonRepository,
	dispatcher events.Dispatcher,
	scheduler DeadlineScheduler,
	clock func() time.Time,
	logger *zap.Logger,
) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		orders:     orders,
		history:    history,
		categories: categories,
		units:      units,
		persons:    persons,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		clock:      clock,
		logger:     logger,
	}
}

// Create registers a new work order in NEW, writes the CREATE history entry
// and publishes the creation trigger.
func (e *Engine) Create(ctx context.Context, input CreateInput, performer Performer) (*domain.WorkOrder, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	category, err := e.categories.GetByID(ctx, input.CategoryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("category", map[string]any{"id": input.CategoryID})
		}
		return nil, apperrors.MapError(err)
	}
	if !category.Active {
		return nil, apperrors.NewValidationError("category is inactive", map[string]any{"id": input.CategoryID})
	}

	now := e.clock()
	code, err := e.orders.NextCode(ctx, now.Year())
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	order := &domain.WorkOrder{
		Code:              code,
		RequesterID:       input.RequesterID,
		SourceUnitID:      input.SourceUnitID,
		DestinationUnitID: input.DestinationUnitID,
		ReceiverMode:      input.ReceiverMode,
		ReceiverPersonID:  input.ReceiverPersonID,
		CategoryID:        input.CategoryID,
		Category:          category.Snapshot(),
		Subject:           input.Subject,
		Description:       input.Description,
		Status:            domain.StatusNew,
	}
	if err := e.orders.Create(ctx, order); err != nil {
		return nil, apperrors.MapError(err)
	}

	e.appendHistory(ctx, order.ID, domain.ActionCreate, performer, "", domain.StatusNew,
		nil, StatusSnapshot{Status: domain.StatusNew}, "")

	e.publish(domain.TriggerCreated, order, performer, nil)
	e.logger.Info("work order created",
		zap.String("work_order_id", order.ID),
		zap.String("code", order.Code),
		zap.String("requester_id", order.RequesterID))
	return order, nil
}

// Get loads a work order by id.
func (e *Engine) Get(ctx context.Context, id string) (*domain.WorkOrder, error) {
	return e.load(ctx, id)
}

// List applies the filter.
func (e *Engine) List(ctx context.Context, filter repository.WorkOrderFilter) ([]domain.WorkOrder, error) {
	orders, err := e.orders.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return orders, nil
}

// History returns the audit trail, newest first.
func (e *Engine) History(ctx context.Context, workOrderID string, limit, offset int) ([]domain.HistoryEntry, error) {
	entries, err := e.history.ListByWorkOrder(ctx, workOrderID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// ExecuteTransition runs one lifecycle action through the full guard chain.
// Guard order is fixed: transition legality, permission, required fields,
// time window, rate limit. The first failing guard's error code wins.
// For DELETE the returned order is the pre-delete snapshot.
func (e *Engine) ExecuteTransition(ctx context.Context, workOrderID string, action domain.Action, performer Performer, input TransitionInput) (*domain.WorkOrder, error) {
	order, err := e.load(ctx, workOrderID)
	if err != nil {
		return nil, err
	}

	t, ok := lookupTransition(order.Status, action)
	if !ok {
		return nil, apperrors.NewInvalidTransition(string(action), string(order.Status))
	}
	if err := e.checkPermission(ctx, order, action, performer); err != nil {
		return nil, err
	}
	if err := checkRequiredFields(order, action, input); err != nil {
		return nil, err
	}
	now := e.clock()
	if err := checkTimeWindow(order, action, now); err != nil {
		return nil, err
	}
	if err := e.checkRateLimit(ctx, order, action, performer, now); err != nil {
		return nil, err
	}

	if t.removes {
		return e.executeDelete(ctx, order, performer, input)
	}

	fromStatus := order.Status
	oldSnap, newSnap, data := e.apply(order, action, performer, input, now)
	order.Status = t.to

	if err := e.orders.Update(ctx, order); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("work order", map[string]any{"id": order.ID})
		}
		return nil, apperrors.MapError(err)
	}

	e.appendHistory(ctx, order.ID, action, performer, fromStatus, order.Status, oldSnap, newSnap, input.Note)
	e.syncJobs(ctx, order, action)
	e.publish(domain.TriggerForAction(action), order, performer, data)

	e.logger.Info("work order transitioned",
		zap.String("work_order_id", order.ID),
		zap.String("action", string(action)),
		zap.String("from", string(fromStatus)),
		zap.String("to", string(order.Status)),
		zap.String("performer_id", performer.PersonID))
	return order, nil
}

// executeDelete takes history and the notification event from the pre-delete
// snapshot, then hard-deletes the row. The history entry survives as an
// orphan audit trail.
func (e *Engine) executeDelete(ctx context.Context, order *domain.WorkOrder, performer Performer, input TransitionInput) (*domain.WorkOrder, error) {
	snapshot := *order
	snap := DeleteSnapshot{Status: order.Status, Code: order.Code, Subject: order.Subject}

	e.appendHistory(ctx, order.ID, domain.ActionDelete, performer, order.Status, order.Status,
		snap, nil, input.Note)

	if err := e.orders.HardDelete(ctx, order.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("work order", map[string]any{"id": order.ID})
		}
		return nil, apperrors.MapError(err)
	}

	e.cancelJob(ctx, order.ID, e.scheduler.CancelDeadlineChecks)
	e.cancelJob(ctx, order.ID, e.scheduler.CancelAutoClose)
	e.publish(domain.TriggerDeleted, &snapshot, performer, nil)

	e.logger.Info("work order deleted",
		zap.String("work_order_id", order.ID),
		zap.String("code", order.Code),
		zap.String("performer_id", performer.PersonID))
	return &snapshot, nil
}

// apply mutates the aggregate for the action and returns the audit snapshots
// plus extra event payload. Status is set by the caller from the transition
// table.
func (e *Engine) apply(order *domain.WorkOrder, action domain.Action, performer Performer, input TransitionInput, now time.Time) (oldSnap, newSnap Snapshot, data map[string]any) {
	from := order.Status
	switch action {
	case domain.ActionAccept:
		// A handler-supplied deadline wins; the category duration is the fallback.
		promisedBy := now.Add(order.Category.Duration())
		if input.PromisedBy != nil {
			promisedBy = *input.PromisedBy
		}
		oldSnap = StatusSnapshot{Status: from}
		order.HandlerID = strPtr(performer.PersonID)
		order.AcceptedAt = &now
		order.PromisedBy = &promisedBy
		order.ApproachingNotified = false
		order.OverdueNotified = false
		newSnap = AcceptSnapshot{Status: domain.StatusInProgress, HandlerID: performer.PersonID, PromisedBy: promisedBy}
		data = map[string]any{"promised_by": promisedBy.Format(time.RFC3339)}

	case domain.ActionReject:
		oldSnap = StatusSnapshot{Status: from}
		order.RejectReasonID = strPtr(input.RejectReasonID)
		order.RejectNote = input.Note
		newSnap = RejectSnapshot{Status: domain.StatusRejected, ReasonID: input.RejectReasonID, Note: input.Note}
		data = map[string]any{"reject_reason_id": input.RejectReasonID}

	case domain.ActionDispatch:
		oldSnap = DispatchSnapshot{Status: from, ReceiverPersonID: deref(order.ReceiverPersonID), DispatcherID: deref(order.DispatcherID)}
		order.ReceiverMode = domain.ReceiverModeIndividual
		order.ReceiverPersonID = strPtr(input.TargetHandlerID)
		order.DispatcherID = strPtr(performer.PersonID)
		order.DispatchedAt = &now
		newSnap = DispatchSnapshot{Status: from, ReceiverPersonID: input.TargetHandlerID, DispatcherID: performer.PersonID}
		data = map[string]any{"target_handler_id": input.TargetHandlerID}

	case domain.ActionReturnToUnit:
		oldSnap = DispatchSnapshot{Status: from, ReceiverPersonID: deref(order.ReceiverPersonID), DispatcherID: deref(order.DispatcherID)}
		order.ReceiverMode = domain.ReceiverModeUnit
		order.ReceiverPersonID = nil
		order.DispatchedAt = nil
		newSnap = ReasonSnapshot{Status: from, Reason: input.Note}
		data = map[string]any{"note": input.Note}

	case domain.ActionRemind, domain.ActionEscalate:
		oldSnap = StatusSnapshot{Status: from}
		newSnap = ReasonSnapshot{Status: from, Reason: input.Note}

	case domain.ActionComplete:
		late := order.PromisedBy != nil && now.After(*order.PromisedBy)
		oldSnap = StatusSnapshot{Status: from}
		order.CompletedAt = &now
		order.Late = late
		newSnap = CompleteSnapshot{Status: domain.StatusDone, CompletedAt: now, Late: late}
		data = map[string]any{"late": late}

	case domain.ActionCancelAccept:
		oldSnap = AcceptSnapshot{Status: from, HandlerID: deref(order.HandlerID), PromisedBy: derefTime(order.PromisedBy)}
		order.HandlerID = nil
		order.AcceptedAt = nil
		order.PromisedBy = nil
		order.ApproachingNotified = false
		order.OverdueNotified = false
		newSnap = ReasonSnapshot{Status: domain.StatusNew, Reason: input.Note}

	case domain.ActionReschedule:
		oldSnap = RescheduleSnapshot{Status: from, PromisedBy: order.PromisedBy}
		order.PromisedBy = input.PromisedBy
		order.ApproachingNotified = false
		order.OverdueNotified = false
		newSnap = RescheduleSnapshot{Status: from, PromisedBy: input.PromisedBy}
		if input.PromisedBy != nil {
			data = map[string]any{"promised_by": input.PromisedBy.Format(time.RFC3339)}
		}

	case domain.ActionRate:
		oldSnap = StatusSnapshot{Status: from}
		order.Rating = input.Rating
		order.RatingComment = input.RatingComment
		order.ClosedAt = &now
		newSnap = RateSnapshot{Status: domain.StatusClosed, Rating: *input.Rating, Comment: input.RatingComment}
		data = map[string]any{"rating": *input.Rating}

	case domain.ActionClose:
		oldSnap = StatusSnapshot{Status: from}
		order.ClosedAt = &now
		newSnap = StatusSnapshot{Status: domain.StatusClosed}

	case domain.ActionAutoClose:
		// Closing an unattended DONE order implies the requester had no
		// complaint; an order left unrated gets the default rating.
		oldSnap = StatusSnapshot{Status: from}
		order.ClosedAt = &now
		if order.Rating == nil {
			rating := AutoCloseRating
			order.Rating = &rating
		}
		newSnap = RateSnapshot{Status: domain.StatusClosed, Rating: *order.Rating, Comment: order.RatingComment}
		data = map[string]any{"rating": *order.Rating}

	case domain.ActionRequestRework:
		oldSnap = CompleteSnapshot{Status: from, CompletedAt: derefTime(order.CompletedAt), Late: order.Late}
		order.CompletedAt = nil
		newSnap = ReasonSnapshot{Status: domain.StatusInProgress, Reason: input.Note}
		data = map[string]any{"note": input.Note}

	case domain.ActionReopen:
		oldSnap = StatusSnapshot{Status: from}
		order.ClosedAt = nil
		order.ReopenCount++
		newSnap = ReasonSnapshot{Status: domain.StatusDone, Reason: input.Reason}
		data = map[string]any{"reason": input.Reason, "reopen_count": order.ReopenCount}

	case domain.ActionAppeal:
		oldSnap = RejectSnapshot{Status: from, ReasonID: deref(order.RejectReasonID), Note: order.RejectNote}
		order.RejectReasonID = nil
		order.RejectNote = ""
		newSnap = ReasonSnapshot{Status: domain.StatusNew, Reason: input.Reason}
		data = map[string]any{"reason": input.Reason}

	default:
		oldSnap = StatusSnapshot{Status: from}
		newSnap = StatusSnapshot{Status: from}
	}
	return oldSnap, newSnap, data
}

// syncJobs keeps persisted scheduler jobs aligned with the post-transition
// state. Failures are logged, never surfaced: the mutation is already
// durable and the poll loop tolerates missing or stale jobs.
func (e *Engine) syncJobs(ctx context.Context, order *domain.WorkOrder, action domain.Action) {
	switch action {
	case domain.ActionAccept, domain.ActionReschedule:
		e.cancelJob(ctx, order.ID, e.scheduler.CancelDeadlineChecks)
		if err := e.scheduler.ScheduleDeadlineChecks(ctx, order); err != nil {
			e.logger.Error("scheduling deadline checks failed",
				zap.String("work_order_id", order.ID), zap.Error(err))
		}
	case domain.ActionCancelAccept:
		e.cancelJob(ctx, order.ID, e.scheduler.CancelDeadlineChecks)
	case domain.ActionComplete:
		e.cancelJob(ctx, order.ID, e.scheduler.CancelDeadlineChecks)
		if err := e.scheduler.ScheduleAutoClose(ctx, order); err != nil {
			e.logger.Error("scheduling auto-close failed",
				zap.String("work_order_id", order.ID), zap.Error(err))
		}
	case domain.ActionRate, domain.ActionClose, domain.ActionAutoClose:
		e.cancelJob(ctx, order.ID, e.scheduler.CancelAutoClose)
	case domain.ActionRequestRework:
		e.cancelJob(ctx, order.ID, e.scheduler.CancelAutoClose)
		if order.PromisedBy != nil {
			if err := e.scheduler.ScheduleDeadlineChecks(ctx, order); err != nil {
				e.logger.Error("scheduling deadline checks failed",
					zap.String("work_order_id", order.ID), zap.Error(err))
			}
		}
	case domain.ActionReopen:
		if err := e.scheduler.ScheduleAutoClose(ctx, order); err != nil {
			e.logger.Error("scheduling auto-close failed",
				zap.String("work_order_id", order.ID), zap.Error(err))
		}
	}
}

func (e *Engine) cancelJob(ctx context.Context, workOrderID string, cancel func(context.Context, string) error) {
	if err := cancel(ctx, workOrderID); err != nil {
		e.logger.Error("cancelling scheduled jobs failed",
			zap.String("work_order_id", workOrderID), zap.Error(err))
	}
}

// appendHistory writes the audit row. A history failure after a persisted
// mutation is logged rather than returned; the transition already happened.
func (e *Engine) appendHistory(ctx context.Context, workOrderID string, action domain.Action, performer Performer, from, to domain.WorkOrderStatus, oldSnap, newSnap Snapshot, note string) {
	entry := &domain.HistoryEntry{
		WorkOrderID: workOrderID,
		Action:      action,
		PerformerID: performer.PersonID,
		FromStatus:  from,
		ToStatus:    to,
		Note:        note,
	}
	if oldSnap != nil {
		entry.OldValue = oldSnap.Map()
	}
	if newSnap != nil {
		entry.NewValue = newSnap.Map()
	}
	if err := e.history.Create(ctx, entry); err != nil {
		e.logger.Error("history append failed",
			zap.String("work_order_id", workOrderID),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

func (e *Engine) publish(trigger domain.TriggerKey, order *domain.WorkOrder, performer Performer, data map[string]any) {
	e.dispatcher.Publish(context.Background(), events.Event{
		ID:          uuid.NewString(),
		Trigger:     trigger,
		WorkOrderID: order.ID,
		PerformerID: performer.PersonID,
		Order:       order,
		Data:        data,
		Timestamp:   e.clock(),
	})
}

func (e *Engine) load(ctx context.Context, id string) (*domain.WorkOrder, error) {
	order, err := e.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("work order", map[string]any{"id": id})
		}
		return nil, apperrors.MapError(err)
	}
	if order.Deleted {
		return nil, apperrors.NewDeleted("work order")
	}
	return order, nil
}

func validateCreate(input CreateInput) error {
	var missing []string
	if input.RequesterID == "" {
		missing = append(missing, "requester_id")
	}
	if input.DestinationUnitID == "" {
		missing = append(missing, "destination_unit_id")
	}
	if input.CategoryID == "" {
		missing = append(missing, "category_id")
	}
	if input.Subject == "" {
		missing = append(missing, "subject")
	}
	if input.ReceiverMode == domain.ReceiverModeIndividual && input.ReceiverPersonID == nil {
		missing = append(missing, "receiver_person_id")
	}
	if len(missing) > 0 {
		return apperrors.NewMissingRequiredFields(missing...)
	}
	if input.ReceiverMode != domain.ReceiverModeUnit && input.ReceiverMode != domain.ReceiverModeIndividual {
		return apperrors.NewValidationError("receiver_mode must be UNIT or INDIVIDUAL", nil)
	}
	if input.ReceiverMode == domain.ReceiverModeUnit && input.ReceiverPersonID != nil {
		return apperrors.NewValidationError("receiver_person_id must be empty for unit-addressed work orders", nil)
	}
	return nil
}

func strPtr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
