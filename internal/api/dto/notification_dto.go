package dto

import (
	"time"

	"github.com/spec-kit/workorder-service/internal/domain"
)

// NotificationResponse is one delivered notification.
type NotificationResponse struct {
	ID         string                      `json:"id"`
	Type       string                      `json:"type"`
	Title      string                      `json:"title"`
	Body       string                      `json:"body"`
	ActionLink string                      `json:"action_link,omitempty"`
	Channels   []domain.Channel            `json:"channels"`
	Priority   domain.NotificationPriority `json:"priority"`
	Read       bool                        `json:"read"`
	ReadAt     *time.Time                  `json:"read_at"`
	CreatedAt  time.Time                   `json:"created_at"`
}

// UpdatePreferenceRequest payload.
type UpdatePreferenceRequest struct {
	Enabled        bool     `json:"enabled"`
	DisabledTypes  []string `json:"disabled_types"`
	QuietStartHour *int     `json:"quiet_start_hour" validate:"omitempty,min=0,max=23"`
	QuietEndHour   *int     `json:"quiet_end_hour" validate:"omitempty,min=0,max=23"`
}

// TemplateRequest creates or updates a notification template.
type TemplateRequest struct {
	Type         string                      `json:"type" validate:"required"`
	Title        string                      `json:"title" validate:"required"`
	Body         string                      `json:"body" validate:"required"`
	Channels     []domain.Channel            `json:"channels" validate:"required,min=1,dive,oneof=REALTIME PUSH"`
	Priority     domain.NotificationPriority `json:"priority" validate:"required,oneof=LOW NORMAL HIGH"`
	ActionLink   string                      `json:"action_link"`
	RequiredVars []string                    `json:"required_vars"`
}

// TemplateResponse is the registry view of a template.
type TemplateResponse struct {
	ID           string                      `json:"id"`
	Type         string                      `json:"type"`
	Title        string                      `json:"title"`
	Body         string                      `json:"body"`
	Channels     []domain.Channel            `json:"channels"`
	Priority     domain.NotificationPriority `json:"priority"`
	ActionLink   string                      `json:"action_link,omitempty"`
	RequiredVars []string                    `json:"required_vars,omitempty"`
	AutoCreated  bool                        `json:"auto_created"`
	UsageCount   int64                       `json:"usage_count"`
	LastUsedAt   *time.Time                  `json:"last_used_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}
