package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/workorder-service/internal/api/dto"
	"github.com/spec-kit/workorder-service/internal/auth"
	"github.com/spec-kit/workorder-service/internal/domain"
	"github.com/spec-kit/workorder-service/internal/notify"
	"github.com/spec-kit/workorder-service/internal/repository"
	apperrors "github.com/spec-kit/workorder-service/pkg/util/errorutil"
)

// NotificationsHandler exposes a recipient's inbox, preferences and presence.
type NotificationsHandler struct {
	notifications repository.NotificationRepository
	hub           *notify.RealtimeHub
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notifications repository.NotificationRepository, hub *notify.RealtimeHub) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications, hub: hub}
}

// List GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFrom(c)
	if !ok || principal.AccountID == "" {
		return apperrors.NewUnauthorized("account required")
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	notifications, err := h.notifications.ListByAccount(c.UserContext(), principal.AccountID, pageSize, (page-1)*pageSize)
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		items = append(items, notificationResponse(&notifications[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UnreadCount GET /notifications/unread-count.
func (h *NotificationsHandler) UnreadCount(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFrom(c)
	if !ok || principal.AccountID == "" {
		return apperrors.NewUnauthorized("account required")
	}
	count, err := h.notifications.CountUnread(c.UserContext(), principal.AccountID)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"unread": count}})
}

// MarkRead POST /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFrom(c)
	if !ok || principal.AccountID == "" {
		return apperrors.NewUnauthorized("account required")
	}
	if err := h.notifications.MarkRead(c.UserContext(), c.Params("id"), principal.AccountID); err != nil {
		return apperrors.MapError(err)
	}
	// Read state changed, refresh the badge on other open sessions.
	if count, err := h.notifications.CountUnread(c.UserContext(), principal.AccountID); err == nil {
		_ = h.hub.PushUnreadCount(c.UserContext(), principal.AccountID, count)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"read": true}})
}

// GetPreferences GET /notifications/preferences.
func (h *NotificationsHandler) GetPreferences(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFrom(c)
	if !ok || principal.AccountID == "" {
		return apperrors.NewUnauthorized("account required")
	}
	pref, err := h.notifications.GetPreference(c.UserContext(), principal.AccountID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if pref == nil {
		pref = &domain.NotificationPreference{AccountID: principal.AccountID, Enabled: true}
	}
	return c.JSON(fiber.Map{"data": pref})
}

// UpdatePreferences PUT /notifications/preferences.
func (h *NotificationsHandler) UpdatePreferences(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFrom(c)
	if !ok || principal.AccountID == "" {
		return apperrors.NewUnauthorized("account required")
	}
	var req dto.UpdatePreferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validate.Struct(req); err != nil {
		return validationDetails(err)
	}
	pref := &domain.NotificationPreference{
		AccountID:      principal.AccountID,
		Enabled:        req.Enabled,
		DisabledTypes:  req.DisabledTypes,
		QuietStartHour: req.QuietStartHour,
		QuietEndHour:   req.QuietEndHour,
	}
	if err := h.notifications.UpsertPreference(c.UserContext(), pref); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": pref})
}

// Heartbeat POST /presence/heartbeat. Clients call this periodically while a
// realtime session is open; silence past the TTL counts as offline.
func (h *NotificationsHandler) Heartbeat(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFrom(c)
	if !ok || principal.AccountID == "" {
		return apperrors.NewUnauthorized("account required")
	}
	// Connect is idempotent; a heartbeat from a fresh session registers it.
	h.hub.Connect(c.UserContext(), principal.AccountID)
	return c.JSON(fiber.Map{"data": fiber.Map{"online": true}})
}

// Disconnect POST /presence/disconnect.
func (h *NotificationsHandler) Disconnect(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFrom(c)
	if !ok || principal.AccountID == "" {
		return apperrors.NewUnauthorized("account required")
	}
	h.hub.Disconnect(c.UserContext(), principal.AccountID)
	return c.JSON(fiber.Map{"data": fiber.Map{"online": false}})
}

func notificationResponse(n *domain.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:         n.ID,
		Type:       n.Type,
		Title:      n.Title,
		Body:       n.Body,
		ActionLink: n.ActionLink,
		Channels:   n.Channels,
		Priority:   n.Priority,
		Read:       n.Read,
		ReadAt:     n.ReadAt,
		CreatedAt:  n.CreatedAt,
	}
}
