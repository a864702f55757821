package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/workorder-service/internal/domain"
	"github.com/spec-kit/workorder-service/internal/observability"
	"github.com/spec-kit/workorder-service/internal/repository"
)

// SendInput describes one notification send.
type SendInput struct {
	Type              string
	RecipientPersonID string
	Data              map[string]any
	Priority          *domain.NotificationPriority
}

// Dispatcher renders a template against event data, persists the
// notification and delivers it. Delivery is best-effort: there is no retry
// and no dead-letter path.
type Dispatcher struct {
	identity      *IdentityResolver
	registry      *TemplateRegistry
	notifications repository.NotificationRepository
	hub           *RealtimeHub
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NewDispatcher constructs the dispatcher.
func NewDispatcher(identity *IdentityResolver, registry *TemplateRegistry, notifications repository.NotificationRepository, hub *RealtimeHub, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		identity:      identity,
		registry:      registry,
		notifications: notifications,
		hub:           hub,
		metrics:       metrics,
		logger:        logger,
	}
}

// Send delivers one notification. It returns (nil, nil) when the person has
// no account or the recipient's preferences suppress the type.
func (d *Dispatcher) Send(ctx context.Context, input SendInput) (*domain.Notification, error) {
	account, err := d.identity.AccountForPerson(ctx, input.RecipientPersonID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}

	template, err := d.registry.GetOrCreate(ctx, input.Type)
	if err != nil {
		return nil, err
	}
	d.registry.RecordUsage(input.Type)

	pref, err := d.notifications.GetPreference(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if pref.Suppressed(input.Type, time.Now()) {
		d.metrics.RecordDispatch(input.Type, "suppressed")
		return nil, nil
	}

	priority := template.Priority
	if input.Priority != nil {
		priority = *input.Priority
	}

	notification := &domain.Notification{
		AccountID:  account.ID,
		Type:       input.Type,
		Title:      RenderTokens(template.Title, input.Data),
		Body:       RenderTokens(template.Body, input.Data),
		ActionLink: RenderTokens(template.ActionLink, input.Data),
		Priority:   priority,
		Metadata:   input.Data,
	}

	connected := d.hub.IsConnected(ctx, account.ID)
	if connected {
		notification.Channels = []domain.Channel{domain.ChannelRealtime}
	} else {
		// Offline recipients are marked for the push fallback transport.
		notification.Channels = []domain.Channel{domain.ChannelPush}
	}

	if err := d.notifications.Create(ctx, notification); err != nil {
		return nil, err
	}

	if connected {
		if err := d.hub.PushNotification(ctx, notification); err != nil {
			d.logger.Warn("realtime push failed",
				zap.String("account_id", account.ID), zap.Error(err))
		}
		if count, err := d.notifications.CountUnread(ctx, account.ID); err == nil {
			if err := d.hub.PushUnreadCount(ctx, account.ID, count); err != nil {
				d.logger.Warn("unread count push failed",
					zap.String("account_id", account.ID), zap.Error(err))
			}
		}
	}

	d.metrics.RecordDispatch(input.Type, "sent")
	return notification, nil
}

// SendToMany fans Send out per recipient. One recipient's failure never
// affects the others; no-ops (no account, suppressed) are filtered out.
func (d *Dispatcher) SendToMany(ctx context.Context, notificationType string, personIDs []string, data map[string]any, priority *domain.NotificationPriority) []domain.Notification {
	var sent []domain.Notification
	for _, personID := range personIDs {
		notification, err := d.Send(ctx, SendInput{
			Type:              notificationType,
			RecipientPersonID: personID,
			Data:              data,
			Priority:          priority,
		})
		if err != nil {
			d.metrics.RecordDispatch(notificationType, "failed")
			d.logger.Error("notification send failed",
				zap.String("type", notificationType),
				zap.String("person_id", personID),
				zap.Error(err))
			continue
		}
		if notification != nil {
			sent = append(sent, *notification)
		}
	}
	return sent
}
