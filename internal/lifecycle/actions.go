package lifecycle

import (
	"time"

	"github.com/spec-kit/workorder-service/internal/domain"
)

// Daily quotas for requester nudges, counted per work order and performer
// since local midnight.
const (
	RemindDailyLimit   = 3
	EscalateDailyLimit = 1
)

// ReopenWindow is how long after closing a requester may still reopen.
const ReopenWindow = 7 * 24 * time.Hour

// AutoCloseRating is recorded when the system closes an unattended DONE
// order the requester never rated.
const AutoCloseRating = 5

type transition struct {
	to      domain.WorkOrderStatus
	removes bool
}

// transitionTable is the single source of truth for which actions are legal
// from which state. DELETE is the only removing transition: the aggregate is
// hard-deleted after history and notification have been taken from the
// pre-delete snapshot.
var transitionTable = map[domain.WorkOrderStatus]map[domain.Action]transition{
	domain.StatusNew: {
		domain.ActionAccept:       {to: domain.StatusInProgress},
		domain.ActionReject:       {to: domain.StatusRejected},
		domain.ActionDelete:       {removes: true},
		domain.ActionDispatch:     {to: domain.StatusNew},
		domain.ActionReturnToUnit: {to: domain.StatusNew},
		domain.ActionRemind:       {to: domain.StatusNew},
		domain.ActionEscalate:     {to: domain.StatusNew},
	},
	domain.StatusInProgress: {
		domain.ActionComplete:     {to: domain.StatusDone},
		domain.ActionCancelAccept: {to: domain.StatusNew},
		domain.ActionReschedule:   {to: domain.StatusInProgress},
	},
	domain.StatusDone: {
		domain.ActionRate:          {to: domain.StatusClosed},
		domain.ActionClose:         {to: domain.StatusClosed},
		domain.ActionAutoClose:     {to: domain.StatusClosed},
		domain.ActionRequestRework: {to: domain.StatusInProgress},
	},
	domain.StatusClosed: {
		domain.ActionReopen: {to: domain.StatusDone},
	},
	domain.StatusRejected: {
		domain.ActionAppeal: {to: domain.StatusNew},
	},
}

// lookupTransition returns the transition for (state, action), if legal.
func lookupTransition(state domain.WorkOrderStatus, action domain.Action) (transition, bool) {
	actions, ok := transitionTable[state]
	if !ok {
		return transition{}, false
	}
	t, ok := actions[action]
	return t, ok
}

// AllowedActions lists the legal actions from a state, for API discovery.
func AllowedActions(state domain.WorkOrderStatus) []domain.Action {
	actions := transitionTable[state]
	result := make([]domain.Action, 0, len(actions))
	for action := range actions {
		result = append(result, action)
	}
	return result
}
