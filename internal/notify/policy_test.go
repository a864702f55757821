package notify

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/workorder-service/internal/domain"
	"github.com/spec-kit/workorder-service/internal/events"
)

type stubUnits struct {
	dispatchers map[string][]string
}

func (s stubUnits) GetByID(_ context.Context, id string) (*domain.Unit, error) {
	if ids, ok := s.dispatchers[id]; ok {
		return &domain.Unit{ID: id, DispatcherIDs: ids}, nil
	}
	return nil, pgx.ErrNoRows
}

func (s stubUnits) DispatcherIDs(_ context.Context, unitID string) ([]string, error) {
	ids, ok := s.dispatchers[unitID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return ids, nil
}

func testTriggerConfigs() []domain.TriggerConfig {
	return []domain.TriggerConfig{
		{Key: domain.TriggerCreated, Enabled: true, TemplateType: "workorder_created", Policy: domain.PolicyUnitDispatchers, ExcludePerformer: true},
		{Key: domain.TriggerAccepted, Enabled: true, TemplateType: "workorder_accepted", Policy: domain.PolicyRequester, ExcludePerformer: true},
		{Key: domain.TriggerReminded, Enabled: true, TemplateType: "workorder_reminded", Policy: domain.PolicyHandler, ExcludePerformer: true},
		{Key: domain.TriggerEscalated, Enabled: false, TemplateType: "workorder_escalated", Policy: domain.PolicyAllRelated},
		{Key: domain.TriggerOverdue, Enabled: true, TemplateType: "deadline_overdue", Policy: domain.PolicyAllRelated, ExcludePerformer: false},
	}
}

func testOrder() *domain.WorkOrder {
	handler := "handler-1"
	dispatcher := "disp-1"
	return &domain.WorkOrder{
		ID:                "wo-1",
		Code:              "WO-2026-000001",
		RequesterID:       "req-1",
		DestinationUnitID: "unit-maint",
		HandlerID:         &handler,
		DispatcherID:      &dispatcher,
		Subject:           "Broken bed",
		Status:            domain.StatusInProgress,
		Category:          domain.CategorySnapshot{Name: "Beds"},
	}
}

func newTestEngine(t *testing.T) *PolicyEngine {
	t.Helper()
	engine, err := NewPolicyEngineFromConfigs(testTriggerConfigs(),
		stubUnits{dispatchers: map[string][]string{"unit-maint": {"disp-1", "disp-2"}}}, zap.NewNop())
	require.NoError(t, err)
	return engine
}

func TestPolicyEngineRejectsUnknownPolicyKind(t *testing.T) {
	_, err := NewPolicyEngineFromConfigs([]domain.TriggerConfig{
		{Key: domain.TriggerCreated, Enabled: true, Policy: domain.PolicyKind("EVERYONE")},
	}, stubUnits{}, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown policy kind")
}

func TestResolveUnknownTriggerSkips(t *testing.T) {
	engine := newTestEngine(t)
	resolution, err := engine.Resolve(context.Background(), events.Event{
		Trigger: domain.TriggerKey("WorkOrder.NOT_A_THING"),
		Order:   testOrder(),
	})
	require.NoError(t, err)
	require.Nil(t, resolution)
}

func TestResolveDisabledTriggerSkips(t *testing.T) {
	engine := newTestEngine(t)
	resolution, err := engine.Resolve(context.Background(), events.Event{
		Trigger: domain.TriggerEscalated,
		Order:   testOrder(),
	})
	require.NoError(t, err)
	require.Nil(t, resolution)
}

func TestResolveUnitDispatchers(t *testing.T) {
	engine := newTestEngine(t)
	resolution, err := engine.Resolve(context.Background(), events.Event{
		Trigger:     domain.TriggerCreated,
		PerformerID: "req-1",
		Order:       testOrder(),
	})
	require.NoError(t, err)
	require.NotNil(t, resolution)
	require.Equal(t, []string{"disp-1", "disp-2"}, resolution.PersonIDs)
	require.Equal(t, "workorder_created", resolution.TemplateType)
	require.True(t, resolution.ExcludePerformer)
}

func TestResolveRequester(t *testing.T) {
	engine := newTestEngine(t)
	resolution, err := engine.Resolve(context.Background(), events.Event{
		Trigger:     domain.TriggerAccepted,
		PerformerID: "handler-1",
		Order:       testOrder(),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"req-1"}, resolution.PersonIDs)
}

func TestResolveHandlerFallsBackToReceiver(t *testing.T) {
	engine := newTestEngine(t)
	order := testOrder()
	order.HandlerID = nil
	receiver := "recv-1"
	order.ReceiverPersonID = &receiver

	resolution, err := engine.Resolve(context.Background(), events.Event{
		Trigger: domain.TriggerReminded,
		Order:   order,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"recv-1"}, resolution.PersonIDs)
}

func TestResolveAllRelated(t *testing.T) {
	engine := newTestEngine(t)
	resolution, err := engine.Resolve(context.Background(), events.Event{
		Trigger:     domain.TriggerOverdue,
		PerformerID: domain.SystemActorID,
		Order:       testOrder(),
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"req-1", "handler-1", "disp-1"}, resolution.PersonIDs)
	require.False(t, resolution.ExcludePerformer)
}

func TestResolveBuildsDataBag(t *testing.T) {
	engine := newTestEngine(t)
	resolution, err := engine.Resolve(context.Background(), events.Event{
		Trigger:     domain.TriggerAccepted,
		PerformerID: "handler-1",
		Order:       testOrder(),
		Data:        map[string]any{"promised_by": "2026-03-10 16:00"},
	})
	require.NoError(t, err)
	require.Equal(t, "WO-2026-000001", resolution.Data["code"])
	require.Equal(t, "Broken bed", resolution.Data["subject"])
	require.Equal(t, "Beds", resolution.Data["category"])
	require.Equal(t, "handler-1", resolution.Data["performer_id"])
	require.Equal(t, "2026-03-10 16:00", resolution.Data["promised_by"])
}

func TestExplicitListPolicy(t *testing.T) {
	policy := ExplicitListPolicy{}

	ids, err := policy.Resolve(context.Background(), events.Event{
		Data: map[string]any{"recipient_person_ids": []string{"p-1", "p-2"}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"p-1", "p-2"}, ids)

	// JSON round-trips arrive as []any.
	ids, err = policy.Resolve(context.Background(), events.Event{
		Data: map[string]any{"recipient_person_ids": []any{"p-3", 42, "p-4"}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"p-3", "p-4"}, ids)

	ids, err = policy.Resolve(context.Background(), events.Event{Data: map[string]any{}})
	require.NoError(t, err)
	require.Nil(t, ids)
}
