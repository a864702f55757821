package lifecycle

import (
	"time"

	"github.com/spec-kit/workorder-service/internal/domain"
)

// Snapshot is an audit payload embedded into a history row. Each action has
// its own snapshot type so the audit shape per action is statically known.
type Snapshot interface {
	Map() map[string]any
}

// StatusSnapshot is the minimal before/after view shared by all transitions.
type StatusSnapshot struct {
	Status domain.WorkOrderStatus
}

func (s StatusSnapshot) Map() map[string]any {
	return map[string]any{"status": string(s.Status)}
}

// AcceptSnapshot records the derived deadline and the handler who took the order.
type AcceptSnapshot struct {
	Status     domain.WorkOrderStatus
	HandlerID  string
	PromisedBy time.Time
}

func (s AcceptSnapshot) Map() map[string]any {
	return map[string]any{
		"status":      string(s.Status),
		"handler_id":  s.HandlerID,
		"promised_by": s.PromisedBy.Format(time.RFC3339),
	}
}

// RejectSnapshot records the rejection reason.
type RejectSnapshot struct {
	Status   domain.WorkOrderStatus
	ReasonID string
	Note     string
}

func (s RejectSnapshot) Map() map[string]any {
	return map[string]any{
		"status":    string(s.Status),
		"reason_id": s.ReasonID,
		"note":      s.Note,
	}
}

// DispatchSnapshot records routing to an individual handler.
type DispatchSnapshot struct {
	Status           domain.WorkOrderStatus
	ReceiverPersonID string
	DispatcherID     string
}

func (s DispatchSnapshot) Map() map[string]any {
	return map[string]any{
		"status":             string(s.Status),
		"receiver_person_id": s.ReceiverPersonID,
		"dispatcher_id":      s.DispatcherID,
	}
}

// RescheduleSnapshot records a promised-by change.
type RescheduleSnapshot struct {
	Status     domain.WorkOrderStatus
	PromisedBy *time.Time
}

func (s RescheduleSnapshot) Map() map[string]any {
	m := map[string]any{"status": string(s.Status)}
	if s.PromisedBy != nil {
		m["promised_by"] = s.PromisedBy.Format(time.RFC3339)
	}
	return m
}

// CompleteSnapshot records completion and lateness.
type CompleteSnapshot struct {
	Status      domain.WorkOrderStatus
	CompletedAt time.Time
	Late        bool
}

func (s CompleteSnapshot) Map() map[string]any {
	return map[string]any{
		"status":       string(s.Status),
		"completed_at": s.CompletedAt.Format(time.RFC3339),
		"late":         s.Late,
	}
}

// RateSnapshot records the rating outcome.
type RateSnapshot struct {
	Status  domain.WorkOrderStatus
	Rating  int
	Comment string
}

func (s RateSnapshot) Map() map[string]any {
	return map[string]any{
		"status":  string(s.Status),
		"rating":  s.Rating,
		"comment": s.Comment,
	}
}

// ReasonSnapshot records reopen/appeal/return-style actions that carry a
// free-text reason.
type ReasonSnapshot struct {
	Status domain.WorkOrderStatus
	Reason string
}

func (s ReasonSnapshot) Map() map[string]any {
	return map[string]any{
		"status": string(s.Status),
		"reason": s.Reason,
	}
}

// DeleteSnapshot preserves the aggregate's identity before hard removal.
type DeleteSnapshot struct {
	Status  domain.WorkOrderStatus
	Code    string
	Subject string
}

func (s DeleteSnapshot) Map() map[string]any {
	return map[string]any{
		"status":  string(s.Status),
		"code":    s.Code,
		"subject": s.Subject,
	}
}
