package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/spec-kit/workorder-service/internal/domain"
	apperrors "github.com/spec-kit/workorder-service/pkg/util/errorutil"
)

// checkPermission verifies the performer's relationship to the aggregate
// satisfies the action's role predicate.
func (e *Engine) checkPermission(ctx context.Context, order *domain.WorkOrder, action domain.Action, performer Performer) error {
	switch action {
	case domain.ActionRemind, domain.ActionEscalate, domain.ActionDelete,
		domain.ActionRate, domain.ActionClose, domain.ActionReopen,
		domain.ActionAppeal, domain.ActionRequestRework:
		if performer.PersonID != order.RequesterID {
			return apperrors.NewPermissionDenied(string(action))
		}
	case domain.ActionComplete, domain.ActionReschedule, domain.ActionCancelAccept:
		if order.HandlerID == nil || performer.PersonID != *order.HandlerID {
			return apperrors.NewPermissionDenied(string(action))
		}
	case domain.ActionDispatch, domain.ActionReturnToUnit:
		ok, err := e.isUnitDispatcher(ctx, order.DestinationUnitID, performer.PersonID)
		if err != nil {
			return apperrors.MapError(err)
		}
		if !ok {
			return apperrors.NewPermissionDenied(string(action))
		}
	case domain.ActionAccept, domain.ActionReject:
		ok, err := e.mayAccept(ctx, order, performer)
		if err != nil {
			return apperrors.MapError(err)
		}
		if !ok {
			return apperrors.NewPermissionDenied(string(action))
		}
	case domain.ActionAutoClose:
		if !performer.System() {
			return apperrors.NewPermissionDenied(string(action))
		}
	}
	return nil
}

// mayAccept allows the named individual receiver, any member of the
// destination unit for unit-addressed orders, and the unit's dispatchers
// (accept on behalf).
func (e *Engine) mayAccept(ctx context.Context, order *domain.WorkOrder, performer Performer) (bool, error) {
	if order.ReceiverMode == domain.ReceiverModeIndividual &&
		order.ReceiverPersonID != nil && *order.ReceiverPersonID == performer.PersonID {
		return true, nil
	}
	if order.ReceiverMode == domain.ReceiverModeUnit {
		person, err := e.persons.GetByID(ctx, performer.PersonID)
		if err == nil && person.UnitID != nil && *person.UnitID == order.DestinationUnitID {
			return true, nil
		}
	}
	return e.isUnitDispatcher(ctx, order.DestinationUnitID, performer.PersonID)
}

func (e *Engine) isUnitDispatcher(ctx context.Context, unitID, personID string) (bool, error) {
	ids, err := e.units.DispatcherIDs(ctx, unitID)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == personID {
			return true, nil
		}
	}
	return false, nil
}

// checkRequiredFields enforces per-action payload requirements, including
// the conditional low-rating comment rule. A rating is set once for the
// lifetime of the work order; reopening does not clear it.
func checkRequiredFields(order *domain.WorkOrder, action domain.Action, input TransitionInput) error {
	var missing []string
	switch action {
	case domain.ActionReject:
		if input.RejectReasonID == "" {
			missing = append(missing, "reject_reason_id")
		}
	case domain.ActionDispatch:
		if input.TargetHandlerID == "" {
			missing = append(missing, "target_handler_id")
		}
	case domain.ActionReturnToUnit:
		if strings.TrimSpace(input.Note) == "" {
			missing = append(missing, "note")
		}
	case domain.ActionReschedule:
		if input.PromisedBy == nil {
			missing = append(missing, "promised_by")
		}
	case domain.ActionRate:
		if order.Rating != nil {
			return apperrors.NewConflict("work order is already rated", nil)
		}
		if input.Rating == nil {
			missing = append(missing, "rating")
		} else {
			if *input.Rating < 1 || *input.Rating > 5 {
				return apperrors.NewValidationError("rating must be between 1 and 5", nil)
			}
			if *input.Rating < 3 && strings.TrimSpace(input.RatingComment) == "" {
				missing = append(missing, "rating_comment")
			}
		}
	case domain.ActionReopen, domain.ActionAppeal:
		if strings.TrimSpace(input.Reason) == "" {
			missing = append(missing, "reason")
		}
	}
	if len(missing) > 0 {
		return apperrors.NewMissingRequiredFields(missing...)
	}
	return nil
}

// checkTimeWindow restricts REOPEN to the window after closing.
func checkTimeWindow(order *domain.WorkOrder, action domain.Action, now time.Time) error {
	if action != domain.ActionReopen {
		return nil
	}
	if order.ClosedAt == nil {
		return apperrors.NewConflict("work order has no closed time", nil)
	}
	if now.Sub(*order.ClosedAt) > ReopenWindow {
		return apperrors.NewTimeLimitExceeded("already past the 7-day reopen window")
	}
	return nil
}

// checkRateLimit counts same-action history rows for this work order and
// performer since local midnight. The count is eventually consistent under
// concurrent writers.
func (e *Engine) checkRateLimit(ctx context.Context, order *domain.WorkOrder, action domain.Action, performer Performer, now time.Time) error {
	var limit int
	switch action {
	case domain.ActionRemind:
		limit = RemindDailyLimit
	case domain.ActionEscalate:
		limit = EscalateDailyLimit
	default:
		return nil
	}

	count, err := e.history.CountSince(ctx, order.ID, performer.PersonID, action, localMidnight(now))
	if err != nil {
		return apperrors.MapError(err)
	}
	if count >= limit {
		return apperrors.NewRateLimitExceeded(string(action), limit)
	}
	return nil
}

// localMidnight uses server-local time as the rate-limit day boundary.
func localMidnight(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location())
}
