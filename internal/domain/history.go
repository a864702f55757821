package domain

import "time"

// Action names a lifecycle transition.
type Action string

const (
	ActionCreate        Action = "CREATE"
	ActionAccept        Action = "ACCEPT"
	ActionReject        Action = "REJECT"
	ActionDelete        Action = "DELETE"
	ActionDispatch      Action = "DISPATCH"
	ActionReturnToUnit  Action = "RETURN_TO_UNIT"
	ActionRemind        Action = "REMIND"
	ActionEscalate      Action = "ESCALATE"
	ActionComplete      Action = "COMPLETE"
	ActionCancelAccept  Action = "CANCEL_ACCEPT"
	ActionReschedule    Action = "RESCHEDULE"
	ActionRate          Action = "RATE"
	ActionClose         Action = "CLOSE"
	ActionAutoClose     Action = "AUTO_CLOSE"
	ActionRequestRework Action = "REQUEST_REWORK"
	ActionReopen        Action = "REOPEN"
	ActionAppeal        Action = "APPEAL"
)

// SystemActorID is the performer id recorded for scheduler-driven actions.
const SystemActorID = "SYSTEM"

// HistoryEntry is an immutable audit trail row, one per transition. It is
// never mutated or deleted; the rate-limit guards count these rows.
type HistoryEntry struct {
	ID          string
	WorkOrderID string
	Action      Action
	PerformerID string
	FromStatus  WorkOrderStatus
	ToStatus    WorkOrderStatus
	OldValue    map[string]any
	NewValue    map[string]any
	Note        string
	CreatedAt   time.Time
}

// SystemPerformed reports whether the entry was written by the scheduler
// rather than a person.
func (h *HistoryEntry) SystemPerformed() bool {
	return h.PerformerID == SystemActorID
}
