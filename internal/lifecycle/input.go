package lifecycle

import (
	"time"

	"github.com/spec-kit/workorder-service/internal/domain"
)

// Performer identifies who executes a transition.
type Performer struct {
	PersonID string
}

// System reports whether the performer is the scheduler, not a person.
func (p Performer) System() bool {
	return p.PersonID == domain.SystemActorID
}

// SystemPerformer is the actor recorded for scheduler-driven transitions.
var SystemPerformer = Performer{PersonID: domain.SystemActorID}

// TransitionInput carries the action-specific fields. Which fields are
// required depends on the action; the guard chain validates presence.
type TransitionInput struct {
	Note            string
	TargetHandlerID string
	PromisedBy      *time.Time
	RejectReasonID  string
	Rating          *int
	RatingComment   string
	Reason          string
}

// CreateInput describes a new work order.
type CreateInput struct {
	RequesterID       string
	SourceUnitID      string
	DestinationUnitID string
	ReceiverMode      domain.ReceiverMode
	ReceiverPersonID  *string
	CategoryID        string
	Subject           string
	Description       string
}
