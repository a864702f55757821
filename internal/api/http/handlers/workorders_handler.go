package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/workorder-service/internal/api/dto"
	"github.com/spec-kit/workorder-service/internal/auth"
	"github.com/spec-kit/workorder-service/internal/domain"
	"github.com/spec-kit/workorder-service/internal/lifecycle"
	"github.com/spec-kit/workorder-service/internal/repository"
	apperrors "github.com/spec-kit/workorder-service/pkg/util/errorutil"
)

var validate = validator.New()

// WorkOrdersHandler exposes the work order lifecycle over HTTP.
type WorkOrdersHandler struct {
	engine  *lifecycle.Engine
	persons repository.PersonRepository
}

// NewWorkOrdersHandler constructs handler.
func NewWorkOrdersHandler(engine *lifecycle.Engine, persons repository.PersonRepository) *WorkOrdersHandler {
	return &WorkOrdersHandler{engine: engine, persons: persons}
}

// Create POST /work-orders.
func (h *WorkOrdersHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFrom(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateWorkOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validate.Struct(req); err != nil {
		return validationDetails(err)
	}

	input := lifecycle.CreateInput{
		RequesterID:       principal.PersonID,
		SourceUnitID:      req.SourceUnitID,
		DestinationUnitID: req.DestinationUnitID,
		ReceiverMode:      domain.ReceiverMode(req.ReceiverMode),
		ReceiverPersonID:  req.ReceiverPersonID,
		CategoryID:        req.CategoryID,
		Subject:           req.Subject,
		Description:       req.Description,
	}
	order, err := h.engine.Create(c.UserContext(), input, lifecycle.Performer{PersonID: principal.PersonID})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": workOrderDetail(order)})
}

// Get GET /work-orders/:id.
func (h *WorkOrdersHandler) Get(c *fiber.Ctx) error {
	order, err := h.engine.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workOrderDetail(order)})
}

// List GET /work-orders.
func (h *WorkOrdersHandler) List(c *fiber.Ctx) error {
	orders, err := h.engine.List(c.UserContext(), parseWorkOrderQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.WorkOrderSummary, 0, len(orders))
	for i := range orders {
		items = append(items, workOrderSummary(&orders[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// History GET /work-orders/:id/history.
func (h *WorkOrdersHandler) History(c *fiber.Ctx) error {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	entries, err := h.engine.History(c.UserContext(), c.Params("id"), pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	names := performerNames(c.UserContext(), h.persons, entries)
	items := make([]dto.HistoryEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, historyEntryResponse(&entries[i], names[entries[i].PerformerID]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Execute POST /work-orders/:id/actions/:action.
func (h *WorkOrdersHandler) Execute(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFrom(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	action, err := parseAction(c.Params("action"))
	if err != nil {
		return err
	}

	var req dto.TransitionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		if err := validate.Struct(req); err != nil {
			return validationDetails(err)
		}
	}

	input := lifecycle.TransitionInput{
		Note:            req.Note,
		TargetHandlerID: req.TargetHandlerID,
		PromisedBy:      req.PromisedBy,
		RejectReasonID:  req.RejectReasonID,
		Rating:          req.Rating,
		RatingComment:   req.RatingComment,
		Reason:          req.Reason,
	}
	order, err := h.engine.ExecuteTransition(c.UserContext(), c.Params("id"), action,
		lifecycle.Performer{PersonID: principal.PersonID}, input)
	if err != nil {
		return err
	}
	if action == domain.ActionDelete {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": fiber.Map{"deleted": true, "code": order.Code}})
	}
	return c.JSON(fiber.Map{"data": workOrderDetail(order)})
}

// parseAction maps the URL segment onto the closed action set. CREATE and
// AUTO_CLOSE are not reachable over this endpoint.
func parseAction(raw string) (domain.Action, error) {
	action := domain.Action(strings.ToUpper(strings.ReplaceAll(raw, "-", "_")))
	switch action {
	case domain.ActionAccept, domain.ActionReject, domain.ActionDelete,
		domain.ActionDispatch, domain.ActionReturnToUnit, domain.ActionRemind,
		domain.ActionEscalate, domain.ActionComplete, domain.ActionCancelAccept,
		domain.ActionReschedule, domain.ActionRate, domain.ActionClose,
		domain.ActionRequestRework, domain.ActionReopen, domain.ActionAppeal:
		return action, nil
	default:
		return "", apperrors.NewValidationError("unknown action", map[string]any{"action": raw})
	}
}

func parseWorkOrderQuery(c *fiber.Ctx) repository.WorkOrderFilter {
	filter := repository.WorkOrderFilter{}
	if v := c.Query("requester_id"); v != "" {
		filter.RequesterID = &v
	}
	if v := c.Query("destination_unit_id"); v != "" {
		filter.DestinationUnitID = &v
	}
	if v := c.Query("handler_id"); v != "" {
		filter.HandlerID = &v
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.WorkOrderStatus(strings.TrimSpace(part)))
		}
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func validationDetails(err error) error {
	details := map[string]any{}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			details[fe.Field()] = fe.Tag()
		}
	}
	return apperrors.NewValidationError("request validation failed", details)
}

func workOrderSummary(order *domain.WorkOrder) dto.WorkOrderSummary {
	return dto.WorkOrderSummary{
		ID:                order.ID,
		Code:              order.Code,
		RequesterID:       order.RequesterID,
		DestinationUnitID: order.DestinationUnitID,
		ReceiverMode:      order.ReceiverMode,
		HandlerID:         order.HandlerID,
		Subject:           order.Subject,
		Status:            order.Status,
		PromisedBy:        order.PromisedBy,
		Late:              order.Late,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}

func workOrderDetail(order *domain.WorkOrder) dto.WorkOrderDetailResponse {
	return dto.WorkOrderDetailResponse{
		ID:                order.ID,
		Code:              order.Code,
		RequesterID:       order.RequesterID,
		SourceUnitID:      order.SourceUnitID,
		DestinationUnitID: order.DestinationUnitID,
		ReceiverMode:      order.ReceiverMode,
		ReceiverPersonID:  order.ReceiverPersonID,
		DispatcherID:      order.DispatcherID,
		HandlerID:         order.HandlerID,
		CategoryID:        order.CategoryID,
		Category:          order.Category,
		Subject:           order.Subject,
		Description:       order.Description,
		Status:            order.Status,
		CreatedAt:         order.CreatedAt,
		DispatchedAt:      order.DispatchedAt,
		AcceptedAt:        order.AcceptedAt,
		PromisedBy:        order.PromisedBy,
		CompletedAt:       order.CompletedAt,
		ClosedAt:          order.ClosedAt,
		RejectReasonID:    order.RejectReasonID,
		RejectNote:        order.RejectNote,
		Rating:            order.Rating,
		RatingComment:     order.RatingComment,
		Late:              order.Late,
		ReopenCount:       order.ReopenCount,
		UpdatedAt:         order.UpdatedAt,
		AllowedActions:    lifecycle.AllowedActions(order.Status),
	}
}

// performerNames maps the distinct performer ids in the entries to display
// names, best effort: a lookup failure leaves the name empty rather than
// failing the export.
func performerNames(ctx context.Context, persons repository.PersonRepository, entries []domain.HistoryEntry) map[string]string {
	names := map[string]string{domain.SystemActorID: "System"}
	for i := range entries {
		id := entries[i].PerformerID
		if id == "" {
			continue
		}
		if _, ok := names[id]; ok {
			continue
		}
		names[id] = ""
		if person, err := persons.GetByID(ctx, id); err == nil {
			names[id] = person.Name
		}
	}
	return names
}

func historyEntryResponse(entry *domain.HistoryEntry, performerName string) dto.HistoryEntryResponse {
	return dto.HistoryEntryResponse{
		ID:            entry.ID,
		Action:        entry.Action,
		PerformerID:   entry.PerformerID,
		PerformerName: performerName,
		FromStatus:    entry.FromStatus,
		ToStatus:      entry.ToStatus,
		OldValue:      entry.OldValue,
		NewValue:      entry.NewValue,
		Note:          entry.Note,
		CreatedAt:     entry.CreatedAt,
	}
}
