package dto

import (
	"time"

	"github.com/spec-kit/workorder-service/internal/domain"
)

// CreateWorkOrderRequest payload.
type CreateWorkOrderRequest struct {
	SourceUnitID      string  `json:"source_unit_id"`
	DestinationUnitID string  `json:"destination_unit_id" validate:"required"`
	ReceiverMode      string  `json:"receiver_mode" validate:"required,oneof=UNIT INDIVIDUAL"`
	ReceiverPersonID  *string `json:"receiver_person_id"`
	CategoryID        string  `json:"category_id" validate:"required"`
	Subject           string  `json:"subject" validate:"required,max=200"`
	Description       string  `json:"description"`
}

// TransitionRequest carries the optional action-specific fields. Which are
// required depends on the action; the lifecycle guards decide.
type TransitionRequest struct {
	Note            string     `json:"note"`
	TargetHandlerID string     `json:"target_handler_id"`
	PromisedBy      *time.Time `json:"promised_by"`
	RejectReasonID  string     `json:"reject_reason_id"`
	Rating          *int       `json:"rating" validate:"omitempty,min=1,max=5"`
	RatingComment   string     `json:"rating_comment"`
	Reason          string     `json:"reason"`
}

// WorkOrderSummary response.
type WorkOrderSummary struct {
	ID                string                 `json:"id"`
	Code              string                 `json:"code"`
	RequesterID       string                 `json:"requester_id"`
	DestinationUnitID string                 `json:"destination_unit_id"`
	ReceiverMode      domain.ReceiverMode    `json:"receiver_mode"`
	HandlerID         *string                `json:"handler_id"`
	Subject           string                 `json:"subject"`
	Status            domain.WorkOrderStatus `json:"status"`
	PromisedBy        *time.Time             `json:"promised_by"`
	Late              bool                   `json:"late"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// WorkOrderDetailResponse provides the full aggregate view.
type WorkOrderDetailResponse struct {
	ID                string                  `json:"id"`
	Code              string                  `json:"code"`
	RequesterID       string                  `json:"requester_id"`
	SourceUnitID      string                  `json:"source_unit_id"`
	DestinationUnitID string                  `json:"destination_unit_id"`
	ReceiverMode      domain.ReceiverMode     `json:"receiver_mode"`
	ReceiverPersonID  *string                 `json:"receiver_person_id"`
	DispatcherID      *string                 `json:"dispatcher_id"`
	HandlerID         *string                 `json:"handler_id"`
	CategoryID        string                  `json:"category_id"`
	Category          domain.CategorySnapshot `json:"category"`
	Subject           string                  `json:"subject"`
	Description       string                  `json:"description"`
	Status            domain.WorkOrderStatus  `json:"status"`
	CreatedAt         time.Time               `json:"created_at"`
	DispatchedAt      *time.Time              `json:"dispatched_at"`
	AcceptedAt        *time.Time              `json:"accepted_at"`
	PromisedBy        *time.Time              `json:"promised_by"`
	CompletedAt       *time.Time              `json:"completed_at"`
	ClosedAt          *time.Time              `json:"closed_at"`
	RejectReasonID    *string                 `json:"reject_reason_id"`
	RejectNote        string                  `json:"reject_note,omitempty"`
	Rating            *int                    `json:"rating"`
	RatingComment     string                  `json:"rating_comment,omitempty"`
	Late              bool                    `json:"late"`
	ReopenCount       int                     `json:"reopen_count"`
	UpdatedAt         time.Time               `json:"updated_at"`
	AllowedActions    []domain.Action         `json:"allowed_actions"`
}

// HistoryEntryResponse is one audit trail row. PerformerName is resolved for
// display and empty when the person is no longer in the directory.
type HistoryEntryResponse struct {
	ID            string                 `json:"id"`
	Action        domain.Action          `json:"action"`
	PerformerID   string                 `json:"performer_id"`
	PerformerName string                 `json:"performer_name,omitempty"`
	FromStatus    domain.WorkOrderStatus `json:"from_status"`
	ToStatus      domain.WorkOrderStatus `json:"to_status"`
	OldValue      map[string]any         `json:"old_value,omitempty"`
	NewValue      map[string]any         `json:"new_value,omitempty"`
	Note          string                 `json:"note,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}
