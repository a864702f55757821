package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/workorder-service/internal/api/dto"
	"github.com/spec-kit/workorder-service/internal/domain"
	"github.com/spec-kit/workorder-service/internal/notify"
	"github.com/spec-kit/workorder-service/internal/repository"
	apperrors "github.com/spec-kit/workorder-service/pkg/util/errorutil"
)

// TemplatesHandler is the administrator surface of the template registry.
// Writes go through the repository and invalidate the registry cache, so a
// running dispatcher picks edits up on the next send.
type TemplatesHandler struct {
	templates repository.TemplateRepository
	registry  *notify.TemplateRegistry
}

// NewTemplatesHandler constructs handler.
func NewTemplatesHandler(templates repository.TemplateRepository, registry *notify.TemplateRegistry) *TemplatesHandler {
	return &TemplatesHandler{templates: templates, registry: registry}
}

// List GET /admin/templates.
func (h *TemplatesHandler) List(c *fiber.Ctx) error {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	templates, err := h.templates.List(c.UserContext(), pageSize, (page-1)*pageSize)
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.TemplateResponse, 0, len(templates))
	for i := range templates {
		items = append(items, templateResponse(&templates[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /admin/templates/:type.
func (h *TemplatesHandler) Get(c *fiber.Ctx) error {
	template, err := h.templates.GetByType(c.UserContext(), c.Params("type"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("template", map[string]any{"type": c.Params("type")})
		}
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": templateResponse(template)})
}

// Upsert PUT /admin/templates/:type. Configuring a type clears its
// auto-created flag.
func (h *TemplatesHandler) Upsert(c *fiber.Ctx) error {
	var req dto.TemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Type = c.Params("type")
	if err := validate.Struct(req); err != nil {
		return validationDetails(err)
	}

	template := &domain.NotificationTemplate{
		Type:         req.Type,
		Title:        req.Title,
		Body:         req.Body,
		Channels:     req.Channels,
		Priority:     req.Priority,
		ActionLink:   req.ActionLink,
		RequiredVars: req.RequiredVars,
		AutoCreated:  false,
	}
	err := h.templates.Update(c.UserContext(), template)
	if errors.Is(err, pgx.ErrNoRows) {
		err = h.templates.Create(c.UserContext(), template)
	}
	if err != nil {
		return apperrors.MapError(err)
	}

	h.registry.Invalidate(req.Type)
	return c.JSON(fiber.Map{"data": templateResponse(template)})
}

func templateResponse(t *domain.NotificationTemplate) dto.TemplateResponse {
	return dto.TemplateResponse{
		ID:           t.ID,
		Type:         t.Type,
		Title:        t.Title,
		Body:         t.Body,
		Channels:     t.Channels,
		Priority:     t.Priority,
		ActionLink:   t.ActionLink,
		RequiredVars: t.RequiredVars,
		AutoCreated:  t.AutoCreated,
		UsageCount:   t.UsageCount,
		LastUsedAt:   t.LastUsedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}
