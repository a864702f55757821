package events

import (
	"time"

	"github.com/spec-kit/workorder-service/internal/domain"
)

// Event is a lifecycle business event emitted after a work order mutation has
// been persisted. Order is the post-transition aggregate snapshot; for hard
// deletes it is the pre-delete snapshot, captured before removal.
type Event struct {
	ID          string             `json:"id"`
	Trigger     domain.TriggerKey  `json:"trigger"`
	WorkOrderID string             `json:"work_order_id"`
	PerformerID string             `json:"performer_id"`
	Order       *domain.WorkOrder  `json:"order"`
	Data        map[string]any     `json:"data"`
	Timestamp   time.Time          `json:"timestamp"`
}

// SystemPerformed reports whether the scheduler, not a person, caused the event.
func (e Event) SystemPerformed() bool {
	return e.PerformerID == domain.SystemActorID
}
