package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/workorder-service/internal/events"
)

// Router connects the event stream to the policy engine and the dispatcher.
// It runs on the worker pool via the event dispatcher; everything here is
// after the business transaction has committed and must never fail it.
type Router struct {
	engine     *PolicyEngine
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewRouter constructs the router.
func NewRouter(engine *PolicyEngine, dispatcher *Dispatcher, logger *zap.Logger) *Router {
	return &Router{engine: engine, dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes the router to every lifecycle trigger.
func (r *Router) RegisterHandlers(dispatcher events.Dispatcher) {
	dispatcher.SubscribeAll(r.handleEvent)
}

func (r *Router) handleEvent(ctx context.Context, event events.Event) error {
	resolution, err := r.engine.Resolve(ctx, event)
	if err != nil {
		return err
	}
	if resolution == nil {
		return nil
	}

	personIDs := resolution.PersonIDs
	if resolution.ExcludePerformer {
		personIDs = withoutPerformer(personIDs, event.PerformerID)
	}
	if len(personIDs) == 0 {
		return nil
	}

	sent := r.dispatcher.SendToMany(ctx, resolution.TemplateType, personIDs, resolution.Data, nil)
	r.logger.Debug("event routed",
		zap.String("trigger", string(event.Trigger)),
		zap.String("work_order_id", event.WorkOrderID),
		zap.Int("recipients", len(personIDs)),
		zap.Int("delivered", len(sent)))
	return nil
}

// withoutPerformer drops the performer even when they appear as requester or
// handler; a person maps to at most one account, so filtering person ids is
// equivalent to filtering resolved account ids.
func withoutPerformer(personIDs []string, performerID string) []string {
	if performerID == "" {
		return personIDs
	}
	filtered := make([]string, 0, len(personIDs))
	for _, id := range personIDs {
		if id == performerID {
			continue
		}
		filtered = append(filtered, id)
	}
	return filtered
}
