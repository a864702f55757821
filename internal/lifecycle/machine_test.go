package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/workorder-service/internal/domain"
	"github.com/spec-kit/workorder-service/internal/events"
	"github.com/spec-kit/workorder-service/internal/repository"
	apperrors "github.com/spec-kit/workorder-service/pkg/util/errorutil"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)

type fakeOrders struct {
	mu     sync.Mutex
	seq    int
	codes  int
	orders map[string]domain.WorkOrder
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: make(map[string]domain.WorkOrder)}
}

func (f *fakeOrders) Create(_ context.Context, order *domain.WorkOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	order.ID = fmt.Sprintf("wo-%d", f.seq)
	order.CreatedAt = testNow
	order.UpdatedAt = testNow
	f.orders[order.ID] = *order
	return nil
}

func (f *fakeOrders) Update(_ context.Context, order *domain.WorkOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[order.ID]; !ok {
		return pgx.ErrNoRows
	}
	order.UpdatedAt = testNow
	f.orders[order.ID] = *order
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (*domain.WorkOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &order, nil
}

func (f *fakeOrders) GetByCode(_ context.Context, code string) (*domain.WorkOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.Code == code {
			o := order
			return &o, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeOrders) HardDelete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.orders, id)
	return nil
}

func (f *fakeOrders) ListWithFilter(_ context.Context, _ repository.WorkOrderFilter) ([]domain.WorkOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]domain.WorkOrder, 0, len(f.orders))
	for _, order := range f.orders {
		result = append(result, order)
	}
	return result, nil
}

func (f *fakeOrders) NextCode(_ context.Context, year int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes++
	return fmt.Sprintf("WO-%d-%06d", year, f.codes), nil
}

func (f *fakeOrders) seed(order domain.WorkOrder) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	order.ID = fmt.Sprintf("wo-%d", f.seq)
	f.orders[order.ID] = order
	return order.ID
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func (f *fakeHistory) Create(_ context.Context, entry *domain.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = fmt.Sprintf("h-%d", len(f.entries)+1)
	entry.CreatedAt = testNow
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeHistory) ListByWorkOrder(_ context.Context, workOrderID string, _, _ int) ([]domain.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.HistoryEntry
	for _, entry := range f.entries {
		if entry.WorkOrderID == workOrderID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (f *fakeHistory) CountSince(_ context.Context, workOrderID, performerID string, action domain.Action, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, entry := range f.entries {
		if entry.WorkOrderID == workOrderID && entry.PerformerID == performerID &&
			entry.Action == action && !entry.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

type fakeCategories struct {
	categories map[string]domain.Category
}

func (f *fakeCategories) GetByID(_ context.Context, id string) (*domain.Category, error) {
	category, ok := f.categories[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &category, nil
}

type fakeUnits struct {
	units map[string]domain.Unit
}

func (f *fakeUnits) GetByID(_ context.Context, id string) (*domain.Unit, error) {
	unit, ok := f.units[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &unit, nil
}

func (f *fakeUnits) DispatcherIDs(_ context.Context, unitID string) ([]string, error) {
	unit, ok := f.units[unitID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return unit.DispatcherIDs, nil
}

type fakePersons struct {
	persons map[string]domain.Person
}

func (f *fakePersons) GetByID(_ context.Context, id string) (*domain.Person, error) {
	person, ok := f.persons[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &person, nil
}

func (f *fakePersons) AccountByPersonID(_ context.Context, _ string) (*domain.Account, error) {
	return nil, nil
}

func (f *fakePersons) AccountsByPersonIDs(_ context.Context, _ []string) ([]domain.Account, error) {
	return nil, nil
}

func (f *fakePersons) AccountByID(_ context.Context, _ string) (*domain.Account, error) {
	return nil, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *recordingDispatcher) Subscribe(_ domain.TriggerKey, _ events.EventHandler) {}
func (d *recordingDispatcher) SubscribeAll(_ events.EventHandler)                  {}

func (d *recordingDispatcher) triggers() []domain.TriggerKey {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]domain.TriggerKey, 0, len(d.events))
	for _, event := range d.events {
		keys = append(keys, event.Trigger)
	}
	return keys
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []string
	cancelled []string
}

func (f *fakeScheduler) record(list *[]string, entry string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*list = append(*list, entry)
}

func (f *fakeScheduler) ScheduleDeadlineChecks(_ context.Context, order *domain.WorkOrder) error {
	f.record(&f.scheduled, "deadlines:"+order.ID)
	return nil
}

func (f *fakeScheduler) CancelDeadlineChecks(_ context.Context, workOrderID string) error {
	f.record(&f.cancelled, "deadlines:"+workOrderID)
	return nil
}

func (f *fakeScheduler) ScheduleAutoClose(_ context.Context, order *domain.WorkOrder) error {
	f.record(&f.scheduled, "autoclose:"+order.ID)
	return nil
}

func (f *fakeScheduler) CancelAutoClose(_ context.Context, workOrderID string) error {
	f.record(&f.cancelled, "autoclose:"+workOrderID)
	return nil
}

type testEnv struct {
	engine     *Engine
	orders     *fakeOrders
	history    *fakeHistory
	dispatcher *recordingDispatcher
	scheduler  *fakeScheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	orders := newFakeOrders()
	history := &fakeHistory{}
	categories := &fakeCategories{categories: map[string]domain.Category{
		"cat-plumbing": {ID: "cat-plumbing", Name: "Plumbing", DurationUnit: domain.DurationHours, DurationValue: 4, Active: true},
		"cat-retired":  {ID: "cat-retired", Name: "Retired", DurationUnit: domain.DurationDays, DurationValue: 1, Active: false},
	}}
	units := &fakeUnits{units: map[string]domain.Unit{
		"unit-maint": {ID: "unit-maint", Name: "Maintenance", DispatcherIDs: []string{"disp-1"}},
		"unit-icu":   {ID: "unit-icu", Name: "ICU"},
	}}
	persons := &fakePersons{persons: map[string]domain.Person{
		"req-1":     {ID: "req-1", UnitID: strPtr("unit-icu"), Active: true},
		"handler-1": {ID: "handler-1", UnitID: strPtr("unit-maint"), Active: true},
		"handler-2": {ID: "handler-2", UnitID: strPtr("unit-maint"), Active: true},
		"disp-1":    {ID: "disp-1", UnitID: strPtr("unit-maint"), Active: true},
		"outsider":  {ID: "outsider", UnitID: strPtr("unit-icu"), Active: true},
	}}
	dispatcher := &recordingDispatcher{}
	sched := &fakeScheduler{}
	engine := NewEngine(orders, history, categories, units, persons, dispatcher, sched,
		func() time.Time { return testNow }, zap.NewNop())
	return &testEnv{engine: engine, orders: orders, history: history, dispatcher: dispatcher, scheduler: sched}
}

func (env *testEnv) createOrder(t *testing.T) *domain.WorkOrder {
	t.Helper()
	order, err := env.engine.Create(context.Background(), CreateInput{
		RequesterID:       "req-1",
		SourceUnitID:      "unit-icu",
		DestinationUnitID: "unit-maint",
		ReceiverMode:      domain.ReceiverModeUnit,
		CategoryID:        "cat-plumbing",
		Subject:           "Leaking sink in ward 3",
	}, Performer{PersonID: "req-1"})
	require.NoError(t, err)
	return order
}

func TestCreateWorkOrder(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	require.Equal(t, domain.StatusNew, order.Status)
	require.Equal(t, "WO-2026-000001", order.Code)
	require.Equal(t, "Plumbing", order.Category.Name)

	require.Len(t, env.history.entries, 1)
	require.Equal(t, domain.ActionCreate, env.history.entries[0].Action)
	require.Equal(t, []domain.TriggerKey{domain.TriggerCreated}, env.dispatcher.triggers())
}

func TestCreateRejectsInactiveCategory(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Create(context.Background(), CreateInput{
		RequesterID:       "req-1",
		DestinationUnitID: "unit-maint",
		ReceiverMode:      domain.ReceiverModeUnit,
		CategoryID:        "cat-retired",
		Subject:           "anything",
	}, Performer{PersonID: "req-1"})
	require.Equal(t, "VALIDATION_FAILED", apperrors.CodeOf(err))
}

func TestCreateRequiresReceiverPersonForIndividualMode(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Create(context.Background(), CreateInput{
		RequesterID:       "req-1",
		DestinationUnitID: "unit-maint",
		ReceiverMode:      domain.ReceiverModeIndividual,
		CategoryID:        "cat-plumbing",
		Subject:           "anything",
	}, Performer{PersonID: "req-1"})
	require.Equal(t, "MISSING_REQUIRED_FIELDS", apperrors.CodeOf(err))
}

func TestCreateRejectsReceiverPersonForUnitMode(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Create(context.Background(), CreateInput{
		RequesterID:       "req-1",
		DestinationUnitID: "unit-maint",
		ReceiverMode:      domain.ReceiverModeUnit,
		ReceiverPersonID:  strPtr("handler-1"),
		CategoryID:        "cat-plumbing",
		Subject:           "anything",
	}, Performer{PersonID: "req-1"})
	require.Equal(t, "VALIDATION_FAILED", apperrors.CodeOf(err))
}

func TestInvalidTransitions(t *testing.T) {
	cases := []struct {
		status domain.WorkOrderStatus
		action domain.Action
	}{
		{domain.StatusNew, domain.ActionComplete},
		{domain.StatusNew, domain.ActionRate},
		{domain.StatusNew, domain.ActionReopen},
		{domain.StatusInProgress, domain.ActionAccept},
		{domain.StatusInProgress, domain.ActionDelete},
		{domain.StatusInProgress, domain.ActionRemind},
		{domain.StatusDone, domain.ActionAccept},
		{domain.StatusDone, domain.ActionReopen},
		{domain.StatusClosed, domain.ActionRate},
		{domain.StatusClosed, domain.ActionAppeal},
		{domain.StatusRejected, domain.ActionReopen},
		{domain.StatusRejected, domain.ActionAccept},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s from %s", tc.action, tc.status), func(t *testing.T) {
			env := newTestEnv(t)
			id := env.orders.seed(domain.WorkOrder{
				RequesterID:       "req-1",
				DestinationUnitID: "unit-maint",
				ReceiverMode:      domain.ReceiverModeUnit,
				Status:            tc.status,
			})
			_, err := env.engine.ExecuteTransition(context.Background(), id, tc.action,
				Performer{PersonID: "req-1"}, TransitionInput{})
			require.Equal(t, "INVALID_TRANSITION", apperrors.CodeOf(err))
		})
	}
}

func TestPermissionGuards(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	// Requester cannot accept their own unit-addressed order from outside the unit.
	_, err := env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionAccept,
		Performer{PersonID: "req-1"}, TransitionInput{})
	require.Equal(t, "PERMISSION_DENIED", apperrors.CodeOf(err))

	// Non-requester cannot remind.
	_, err = env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionRemind,
		Performer{PersonID: "handler-1"}, TransitionInput{})
	require.Equal(t, "PERMISSION_DENIED", apperrors.CodeOf(err))

	// Non-dispatcher cannot dispatch.
	_, err = env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionDispatch,
		Performer{PersonID: "handler-1"}, TransitionInput{TargetHandlerID: "handler-2"})
	require.Equal(t, "PERMISSION_DENIED", apperrors.CodeOf(err))

	// Destination unit member can accept.
	accepted, err := env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionAccept,
		Performer{PersonID: "handler-1"}, TransitionInput{})
	require.NoError(t, err)
	require.Equal(t, domain.StatusInProgress, accepted.Status)
	require.Equal(t, "handler-1", *accepted.HandlerID)

	// Only the assigned handler may complete.
	_, err = env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionComplete,
		Performer{PersonID: "handler-2"}, TransitionInput{})
	require.Equal(t, "PERMISSION_DENIED", apperrors.CodeOf(err))
}

func TestAcceptDerivesPromisedByFromCategorySnapshot(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	accepted, err := env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionAccept,
		Performer{PersonID: "handler-1"}, TransitionInput{})
	require.NoError(t, err)
	require.NotNil(t, accepted.PromisedBy)
	require.Equal(t, testNow.Add(4*time.Hour), *accepted.PromisedBy)
	require.Contains(t, env.scheduler.scheduled, "deadlines:"+order.ID)
}

func TestAcceptHonorsSuppliedPromisedBy(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	supplied := testNow.Add(2 * time.Hour)
	accepted, err := env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionAccept,
		Performer{PersonID: "handler-1"}, TransitionInput{PromisedBy: &supplied})
	require.NoError(t, err)
	require.NotNil(t, accepted.PromisedBy)
	require.Equal(t, supplied, *accepted.PromisedBy)
}

func TestAutoCloseRequiresSystemActor(t *testing.T) {
	env := newTestEnv(t)
	id := env.orders.seed(domain.WorkOrder{
		RequesterID:       "req-1",
		DestinationUnitID: "unit-maint",
		Status:            domain.StatusDone,
	})

	_, err := env.engine.ExecuteTransition(context.Background(), id, domain.ActionAutoClose,
		Performer{PersonID: "req-1"}, TransitionInput{})
	require.Equal(t, "PERMISSION_DENIED", apperrors.CodeOf(err))

	closed, err := env.engine.ExecuteTransition(context.Background(), id, domain.ActionAutoClose,
		SystemPerformer, TransitionInput{})
	require.NoError(t, err)
	require.Equal(t, domain.StatusClosed, closed.Status)
	require.Equal(t, domain.SystemActorID, env.history.entries[len(env.history.entries)-1].PerformerID)
}

func TestAutoCloseSetsDefaultRating(t *testing.T) {
	env := newTestEnv(t)
	id := env.orders.seed(domain.WorkOrder{
		RequesterID:       "req-1",
		DestinationUnitID: "unit-maint",
		Status:            domain.StatusDone,
	})

	closed, err := env.engine.ExecuteTransition(context.Background(), id, domain.ActionAutoClose,
		SystemPerformer, TransitionInput{})
	require.NoError(t, err)
	require.NotNil(t, closed.Rating)
	require.Equal(t, AutoCloseRating, *closed.Rating)

	last := env.dispatcher.events[len(env.dispatcher.events)-1]
	require.Equal(t, AutoCloseRating, last.Data["rating"])
}

func TestAutoCloseKeepsExistingRating(t *testing.T) {
	env := newTestEnv(t)
	id := env.orders.seed(domain.WorkOrder{
		RequesterID:       "req-1",
		DestinationUnitID: "unit-maint",
		Status:            domain.StatusDone,
		Rating:            intPtr(2),
		RatingComment:     "sink still drips",
	})

	closed, err := env.engine.ExecuteTransition(context.Background(), id, domain.ActionAutoClose,
		SystemPerformer, TransitionInput{})
	require.NoError(t, err)
	require.Equal(t, 2, *closed.Rating)
	require.Equal(t, "sink still drips", closed.RatingComment)
}

func TestRequiredFieldGuards(t *testing.T) {
	cases := []struct {
		name   string
		status domain.WorkOrderStatus
		action domain.Action
		input  TransitionInput
		fields string
	}{
		{"reject without reason", domain.StatusNew, domain.ActionReject, TransitionInput{}, "reject_reason_id"},
		{"dispatch without target", domain.StatusNew, domain.ActionDispatch, TransitionInput{}, "target_handler_id"},
		{"return without note", domain.StatusNew, domain.ActionReturnToUnit, TransitionInput{}, "note"},
		{"reschedule without time", domain.StatusInProgress, domain.ActionReschedule, TransitionInput{}, "promised_by"},
		{"rate without rating", domain.StatusDone, domain.ActionRate, TransitionInput{}, "rating"},
		{"low rating without comment", domain.StatusDone, domain.ActionRate, TransitionInput{Rating: intPtr(2)}, "rating_comment"},
		{"reopen without reason", domain.StatusClosed, domain.ActionReopen, TransitionInput{}, "reason"},
		{"appeal without reason", domain.StatusRejected, domain.ActionAppeal, TransitionInput{}, "reason"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			closedAt := testNow.Add(-time.Hour)
			id := env.orders.seed(domain.WorkOrder{
				RequesterID:       "req-1",
				DestinationUnitID: "unit-maint",
				ReceiverMode:      domain.ReceiverModeUnit,
				HandlerID:         strPtr("handler-1"),
				Status:            tc.status,
				ClosedAt:          &closedAt,
			})
			performer := Performer{PersonID: "req-1"}
			switch tc.action {
			case domain.ActionDispatch, domain.ActionReturnToUnit:
				performer = Performer{PersonID: "disp-1"}
			case domain.ActionReschedule:
				performer = Performer{PersonID: "handler-1"}
			case domain.ActionReject:
				performer = Performer{PersonID: "handler-1"}
			}
			_, err := env.engine.ExecuteTransition(context.Background(), id, tc.action, performer, tc.input)
			require.Equal(t, "MISSING_REQUIRED_FIELDS", apperrors.CodeOf(err), "expected missing %s", tc.fields)
		})
	}
}

func TestRatingOutOfRangeRejected(t *testing.T) {
	env := newTestEnv(t)
	id := env.orders.seed(domain.WorkOrder{
		RequesterID:       "req-1",
		DestinationUnitID: "unit-maint",
		Status:            domain.StatusDone,
	})
	_, err := env.engine.ExecuteTransition(context.Background(), id, domain.ActionRate,
		Performer{PersonID: "req-1"}, TransitionInput{Rating: intPtr(6)})
	require.Equal(t, "VALIDATION_FAILED", apperrors.CodeOf(err))
}

func TestRateRejectedWhenAlreadyRated(t *testing.T) {
	env := newTestEnv(t)
	// A reopened order keeps its first rating.
	id := env.orders.seed(domain.WorkOrder{
		RequesterID:       "req-1",
		DestinationUnitID: "unit-maint",
		Status:            domain.StatusDone,
		Rating:            intPtr(4),
		ReopenCount:       1,
	})
	_, err := env.engine.ExecuteTransition(context.Background(), id, domain.ActionRate,
		Performer{PersonID: "req-1"}, TransitionInput{Rating: intPtr(5)})
	require.Equal(t, "CONFLICT", apperrors.CodeOf(err))

	order, getErr := env.orders.GetByID(context.Background(), id)
	require.NoError(t, getErr)
	require.Equal(t, 4, *order.Rating)
}

func TestRemindRateLimit(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	for i := 0; i < RemindDailyLimit; i++ {
		_, err := env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionRemind,
			Performer{PersonID: "req-1"}, TransitionInput{})
		require.NoError(t, err)
	}
	_, err := env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionRemind,
		Performer{PersonID: "req-1"}, TransitionInput{})
	require.Equal(t, "RATE_LIMIT_EXCEEDED", apperrors.CodeOf(err))
}

func TestRemindLimitResetsAfterLocalMidnight(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	// Yesterday's reminders exhausted the quota before midnight.
	yesterday := testNow.Add(-24 * time.Hour)
	for i := 0; i < RemindDailyLimit; i++ {
		env.history.entries = append(env.history.entries, domain.HistoryEntry{
			WorkOrderID: order.ID,
			Action:      domain.ActionRemind,
			PerformerID: "req-1",
			CreatedAt:   yesterday,
		})
	}

	_, err := env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionRemind,
		Performer{PersonID: "req-1"}, TransitionInput{})
	require.NoError(t, err)
}

func TestEscalateRateLimit(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	_, err := env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionEscalate,
		Performer{PersonID: "req-1"}, TransitionInput{})
	require.NoError(t, err)

	_, err = env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionEscalate,
		Performer{PersonID: "req-1"}, TransitionInput{})
	require.Equal(t, "RATE_LIMIT_EXCEEDED", apperrors.CodeOf(err))
}

func TestReopenWindow(t *testing.T) {
	cases := []struct {
		name     string
		closedAt time.Time
		wantCode string
	}{
		{"within window", testNow.Add(-6 * 24 * time.Hour), ""},
		{"at boundary", testNow.Add(-ReopenWindow), ""},
		{"past window", testNow.Add(-8 * 24 * time.Hour), "TIME_LIMIT_EXCEEDED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			closedAt := tc.closedAt
			id := env.orders.seed(domain.WorkOrder{
				RequesterID:       "req-1",
				DestinationUnitID: "unit-maint",
				Status:            domain.StatusClosed,
				ClosedAt:          &closedAt,
			})
			_, err := env.engine.ExecuteTransition(context.Background(), id, domain.ActionReopen,
				Performer{PersonID: "req-1"}, TransitionInput{Reason: "not actually fixed"})
			require.Equal(t, tc.wantCode, apperrors.CodeOf(err))
		})
	}
}

func TestCompleteSetsLateFlag(t *testing.T) {
	env := newTestEnv(t)
	past := testNow.Add(-time.Hour)
	id := env.orders.seed(domain.WorkOrder{
		RequesterID:       "req-1",
		DestinationUnitID: "unit-maint",
		HandlerID:         strPtr("handler-1"),
		PromisedBy:        &past,
		Status:            domain.StatusInProgress,
	})
	done, err := env.engine.ExecuteTransition(context.Background(), id, domain.ActionComplete,
		Performer{PersonID: "handler-1"}, TransitionInput{})
	require.NoError(t, err)
	require.True(t, done.Late)
	require.Contains(t, env.scheduler.scheduled, "autoclose:"+id)
	require.Contains(t, env.scheduler.cancelled, "deadlines:"+id)
}

func TestRescheduleResetsDeadlineFlags(t *testing.T) {
	env := newTestEnv(t)
	promised := testNow.Add(time.Hour)
	id := env.orders.seed(domain.WorkOrder{
		RequesterID:         "req-1",
		DestinationUnitID:   "unit-maint",
		HandlerID:           strPtr("handler-1"),
		PromisedBy:          &promised,
		ApproachingNotified: true,
		OverdueNotified:     true,
		Status:              domain.StatusInProgress,
	})
	newPromise := testNow.Add(48 * time.Hour)
	order, err := env.engine.ExecuteTransition(context.Background(), id, domain.ActionReschedule,
		Performer{PersonID: "handler-1"}, TransitionInput{PromisedBy: &newPromise})
	require.NoError(t, err)
	require.Equal(t, newPromise, *order.PromisedBy)
	require.False(t, order.ApproachingNotified)
	require.False(t, order.OverdueNotified)
}

func TestDeleteNotifiesFromPreDeleteSnapshot(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	snapshot, err := env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionDelete,
		Performer{PersonID: "req-1"}, TransitionInput{})
	require.NoError(t, err)
	require.Equal(t, order.Code, snapshot.Code)

	_, err = env.orders.GetByID(context.Background(), order.ID)
	require.ErrorIs(t, err, pgx.ErrNoRows)

	// History row survives the hard delete.
	entries, err := env.history.ListByWorkOrder(context.Background(), order.ID, 10, 0)
	require.NoError(t, err)
	require.Equal(t, domain.ActionDelete, entries[len(entries)-1].Action)

	// The delete event carries the pre-delete aggregate.
	triggers := env.dispatcher.triggers()
	require.Equal(t, domain.TriggerDeleted, triggers[len(triggers)-1])
	last := env.dispatcher.events[len(env.dispatcher.events)-1]
	require.Equal(t, order.Code, last.Order.Code)
}

func TestDispatchRoutesToIndividual(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	dispatched, err := env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionDispatch,
		Performer{PersonID: "disp-1"}, TransitionInput{TargetHandlerID: "handler-2"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusNew, dispatched.Status)
	require.Equal(t, domain.ReceiverModeIndividual, dispatched.ReceiverMode)
	require.Equal(t, "handler-2", *dispatched.ReceiverPersonID)
	require.Equal(t, "disp-1", *dispatched.DispatcherID)

	// The named receiver can now accept.
	accepted, err := env.engine.ExecuteTransition(context.Background(), order.ID, domain.ActionAccept,
		Performer{PersonID: "handler-2"}, TransitionInput{})
	require.NoError(t, err)
	require.Equal(t, domain.StatusInProgress, accepted.Status)
}

func TestFullLifecycleHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.createOrder(t)

	_, err := env.engine.ExecuteTransition(ctx, order.ID, domain.ActionAccept,
		Performer{PersonID: "handler-1"}, TransitionInput{})
	require.NoError(t, err)

	_, err = env.engine.ExecuteTransition(ctx, order.ID, domain.ActionComplete,
		Performer{PersonID: "handler-1"}, TransitionInput{})
	require.NoError(t, err)

	closed, err := env.engine.ExecuteTransition(ctx, order.ID, domain.ActionRate,
		Performer{PersonID: "req-1"}, TransitionInput{Rating: intPtr(5)})
	require.NoError(t, err)
	require.Equal(t, domain.StatusClosed, closed.Status)
	require.Equal(t, 5, *closed.Rating)
	require.NotNil(t, closed.ClosedAt)

	require.Equal(t, []domain.TriggerKey{
		domain.TriggerCreated,
		domain.TriggerAccepted,
		domain.TriggerCompleted,
		domain.TriggerRated,
	}, env.dispatcher.triggers())

	entries, err := env.history.ListByWorkOrder(ctx, order.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
}

func TestReopenIncrementsCounterAndReschedulesAutoClose(t *testing.T) {
	env := newTestEnv(t)
	closedAt := testNow.Add(-24 * time.Hour)
	id := env.orders.seed(domain.WorkOrder{
		RequesterID:       "req-1",
		DestinationUnitID: "unit-maint",
		Status:            domain.StatusClosed,
		ClosedAt:          &closedAt,
	})
	order, err := env.engine.ExecuteTransition(context.Background(), id, domain.ActionReopen,
		Performer{PersonID: "req-1"}, TransitionInput{Reason: "door still jams"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusDone, order.Status)
	require.Equal(t, 1, order.ReopenCount)
	require.Nil(t, order.ClosedAt)
	require.Contains(t, env.scheduler.scheduled, "autoclose:"+id)
}

func TestAppealClearsRejection(t *testing.T) {
	env := newTestEnv(t)
	id := env.orders.seed(domain.WorkOrder{
		RequesterID:       "req-1",
		DestinationUnitID: "unit-maint",
		Status:            domain.StatusRejected,
		RejectReasonID:    strPtr("reason-dup"),
		RejectNote:        "duplicate of WO-2026-000007",
	})
	order, err := env.engine.ExecuteTransition(context.Background(), id, domain.ActionAppeal,
		Performer{PersonID: "req-1"}, TransitionInput{Reason: "not a duplicate"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusNew, order.Status)
	require.Nil(t, order.RejectReasonID)
	require.Empty(t, order.RejectNote)
}

func TestTransitionOnMissingOrder(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.ExecuteTransition(context.Background(), "wo-missing", domain.ActionAccept,
		Performer{PersonID: "handler-1"}, TransitionInput{})
	require.Equal(t, "NOT_FOUND", apperrors.CodeOf(err))
}

func intPtr(v int) *int { return &v }
