package domain

import "time"

// WorkOrderStatus enumerates lifecycle states for work orders.
type WorkOrderStatus string

const (
	StatusNew        WorkOrderStatus = "NEW"
	StatusInProgress WorkOrderStatus = "IN_PROGRESS"
	StatusDone       WorkOrderStatus = "DONE"
	StatusClosed     WorkOrderStatus = "CLOSED"
	StatusRejected   WorkOrderStatus = "REJECTED"
)

// ReceiverMode says whether a work order is addressed to a whole unit or to one person.
type ReceiverMode string

const (
	ReceiverModeUnit       ReceiverMode = "UNIT"
	ReceiverModeIndividual ReceiverMode = "INDIVIDUAL"
)

// DurationUnit qualifies a category's expected-duration value.
type DurationUnit string

const (
	DurationHours DurationUnit = "HOURS"
	DurationDays  DurationUnit = "DAYS"
)

// CategorySnapshot freezes the category display name and expected duration at
// creation time, so later category edits do not rewrite history.
type CategorySnapshot struct {
	Name          string       `json:"name"`
	DurationUnit  DurationUnit `json:"duration_unit"`
	DurationValue int          `json:"duration_value"`
}

// Duration converts the snapshot into a concrete promised-by offset.
func (s CategorySnapshot) Duration() time.Duration {
	switch s.DurationUnit {
	case DurationDays:
		return time.Duration(s.DurationValue) * 24 * time.Hour
	default:
		return time.Duration(s.DurationValue) * time.Hour
	}
}

// WorkOrder is the ticket aggregate that moves through the lifecycle.
type WorkOrder struct {
	ID                string
	Code              string
	RequesterID       string
	SourceUnitID      string
	DestinationUnitID string
	ReceiverMode      ReceiverMode
	ReceiverPersonID  *string
	DispatcherID      *string
	HandlerID         *string
	CategoryID        string
	Category          CategorySnapshot
	Subject           string
	Description       string
	Status            WorkOrderStatus

	CreatedAt    time.Time
	DispatchedAt *time.Time
	AcceptedAt   *time.Time
	PromisedBy   *time.Time
	CompletedAt  *time.Time
	ClosedAt     *time.Time

	RejectReasonID *string
	RejectNote     string
	Rating         *int
	RatingComment  string
	Late           bool

	// Idempotency flags for the deadline jobs; a replayed job never double-fires.
	ApproachingNotified bool
	OverdueNotified     bool
	ReopenCount         int

	Deleted   bool
	UpdatedAt time.Time
}

// Terminal reports whether the status accepts no further actions except
// the explicit reopen/appeal paths.
func (s WorkOrderStatus) Terminal() bool {
	return s == StatusClosed || s == StatusRejected
}
