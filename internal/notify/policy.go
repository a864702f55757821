package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/workorder-service/internal/domain"
	"github.com/spec-kit/workorder-service/internal/events"
	"github.com/spec-kit/workorder-service/internal/repository"
)

// RecipientPolicy computes candidate recipient persons for an event. The
// variant set is closed; an unknown policy kind is rejected when the trigger
// table is loaded, never at dispatch time.
type RecipientPolicy interface {
	Resolve(ctx context.Context, event events.Event) ([]string, error)
}

// RequesterPolicy targets the work order's requester.
type RequesterPolicy struct{}

func (RequesterPolicy) Resolve(_ context.Context, event events.Event) ([]string, error) {
	if event.Order == nil || event.Order.RequesterID == "" {
		return nil, nil
	}
	return []string{event.Order.RequesterID}, nil
}

// HandlerPolicy targets the assigned handler, falling back to the named
// individual receiver when nobody accepted yet.
type HandlerPolicy struct{}

func (HandlerPolicy) Resolve(_ context.Context, event events.Event) ([]string, error) {
	if event.Order == nil {
		return nil, nil
	}
	if event.Order.HandlerID != nil && *event.Order.HandlerID != "" {
		return []string{*event.Order.HandlerID}, nil
	}
	if event.Order.ReceiverPersonID != nil && *event.Order.ReceiverPersonID != "" {
		return []string{*event.Order.ReceiverPersonID}, nil
	}
	return nil, nil
}

// UnitDispatchersPolicy targets the destination unit's configured dispatcher list.
type UnitDispatchersPolicy struct {
	Units repository.UnitRepository
}

func (p UnitDispatchersPolicy) Resolve(ctx context.Context, event events.Event) ([]string, error) {
	if event.Order == nil || event.Order.DestinationUnitID == "" {
		return nil, nil
	}
	return p.Units.DispatcherIDs(ctx, event.Order.DestinationUnitID)
}

// AllRelatedPolicy targets the union of requester, handler, dispatcher and
// the named individual receiver.
type AllRelatedPolicy struct{}

func (AllRelatedPolicy) Resolve(_ context.Context, event events.Event) ([]string, error) {
	if event.Order == nil {
		return nil, nil
	}
	var ids []string
	ids = append(ids, event.Order.RequesterID)
	if event.Order.HandlerID != nil {
		ids = append(ids, *event.Order.HandlerID)
	}
	if event.Order.DispatcherID != nil {
		ids = append(ids, *event.Order.DispatcherID)
	}
	if event.Order.ReceiverPersonID != nil {
		ids = append(ids, *event.Order.ReceiverPersonID)
	}
	return ids, nil
}

// ExplicitListPolicy targets a literal person-id list supplied by the caller
// in the event data under "recipient_person_ids".
type ExplicitListPolicy struct{}

func (ExplicitListPolicy) Resolve(_ context.Context, event events.Event) ([]string, error) {
	raw, ok := event.Data["recipient_person_ids"]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids, nil
	default:
		return nil, nil
	}
}

// Resolution is the policy engine's output for one event.
type Resolution struct {
	PersonIDs        []string
	TemplateType     string
	ExcludePerformer bool
	Data             map[string]any
}

// PolicyEngine holds the per-trigger routing configuration, loaded once at
// startup and read-only afterwards.
type PolicyEngine struct {
	triggers map[domain.TriggerKey]domain.TriggerConfig
	policies map[domain.PolicyKind]RecipientPolicy
	logger   *zap.Logger
}

// NewPolicyEngine loads the trigger table and binds each policy kind to its
// resolver. An unknown policy kind in the table fails startup.
func NewPolicyEngine(ctx context.Context, triggers repository.TriggerRepository, units repository.UnitRepository, logger *zap.Logger) (*PolicyEngine, error) {
	configs, err := triggers.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trigger configs: %w", err)
	}

	table := make(map[domain.TriggerKey]domain.TriggerConfig, len(configs))
	for _, cfg := range configs {
		if !domain.ValidPolicyKind(cfg.Policy) {
			return nil, fmt.Errorf("trigger %s: unknown policy kind %q", cfg.Key, cfg.Policy)
		}
		table[cfg.Key] = cfg
	}

	return &PolicyEngine{
		triggers: table,
		policies: map[domain.PolicyKind]RecipientPolicy{
			domain.PolicyRequester:       RequesterPolicy{},
			domain.PolicyHandler:         HandlerPolicy{},
			domain.PolicyUnitDispatchers: UnitDispatchersPolicy{Units: units},
			domain.PolicyAllRelated:      AllRelatedPolicy{},
			domain.PolicyExplicitList:    ExplicitListPolicy{},
		},
		logger: logger,
	}, nil
}

// NewPolicyEngineFromConfigs builds the engine from an in-memory table; used
// by tests and by deployments that ship the table as static configuration.
func NewPolicyEngineFromConfigs(configs []domain.TriggerConfig, units repository.UnitRepository, logger *zap.Logger) (*PolicyEngine, error) {
	table := make(map[domain.TriggerKey]domain.TriggerConfig, len(configs))
	for _, cfg := range configs {
		if !domain.ValidPolicyKind(cfg.Policy) {
			return nil, fmt.Errorf("trigger %s: unknown policy kind %q", cfg.Key, cfg.Policy)
		}
		table[cfg.Key] = cfg
	}
	return &PolicyEngine{
		triggers: table,
		policies: map[domain.PolicyKind]RecipientPolicy{
			domain.PolicyRequester:       RequesterPolicy{},
			domain.PolicyHandler:         HandlerPolicy{},
			domain.PolicyUnitDispatchers: UnitDispatchersPolicy{Units: units},
			domain.PolicyAllRelated:      AllRelatedPolicy{},
			domain.PolicyExplicitList:    ExplicitListPolicy{},
		},
		logger: logger,
	}, nil
}

// Resolve computes the candidate recipient set for an event. Unknown or
// disabled triggers return (nil, nil): they must never abort the business
// transaction that emitted the event.
func (e *PolicyEngine) Resolve(ctx context.Context, event events.Event) (*Resolution, error) {
	cfg, ok := e.triggers[event.Trigger]
	if !ok {
		e.logger.Warn("unknown trigger key; event skipped",
			zap.String("trigger", string(event.Trigger)),
			zap.String("work_order_id", event.WorkOrderID))
		return nil, nil
	}
	if !cfg.Enabled {
		e.logger.Info("trigger disabled; event skipped",
			zap.String("trigger", string(event.Trigger)))
		return nil, nil
	}

	policy := e.policies[cfg.Policy]
	personIDs, err := policy.Resolve(ctx, event)
	if err != nil {
		return nil, err
	}
	if len(personIDs) == 0 {
		return nil, nil
	}

	data := buildDataBag(event)
	return &Resolution{
		PersonIDs:        personIDs,
		TemplateType:     cfg.TemplateType,
		ExcludePerformer: cfg.ExcludePerformer,
		Data:             data,
	}, nil
}

// buildDataBag merges the aggregate's render-relevant fields with the ad-hoc
// fields supplied by the action.
func buildDataBag(event events.Event) map[string]any {
	data := make(map[string]any, len(event.Data)+6)
	for k, v := range event.Data {
		data[k] = v
	}
	if order := event.Order; order != nil {
		data["code"] = order.Code
		data["subject"] = order.Subject
		data["status"] = string(order.Status)
		data["category"] = order.Category.Name
		data["work_order_id"] = order.ID
		if order.PromisedBy != nil {
			data["promised_by"] = order.PromisedBy.Format("2006-01-02 15:04")
		}
	}
	data["performer_id"] = event.PerformerID
	return data
}
