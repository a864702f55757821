package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/workorder-service/internal/domain"
	"github.com/spec-kit/workorder-service/internal/observability"
)

type fakePersonDirectory struct {
	accounts map[string]domain.Account
}

func (f *fakePersonDirectory) GetByID(_ context.Context, id string) (*domain.Person, error) {
	return nil, pgx.ErrNoRows
}

func (f *fakePersonDirectory) AccountByPersonID(_ context.Context, personID string) (*domain.Account, error) {
	account, ok := f.accounts[personID]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (f *fakePersonDirectory) AccountsByPersonIDs(_ context.Context, personIDs []string) ([]domain.Account, error) {
	var result []domain.Account
	for _, id := range personIDs {
		if account, ok := f.accounts[id]; ok {
			result = append(result, account)
		}
	}
	return result, nil
}

func (f *fakePersonDirectory) AccountByID(_ context.Context, _ string) (*domain.Account, error) {
	return nil, nil
}

type fakeInbox struct {
	mu            sync.Mutex
	notifications []domain.Notification
	preferences   map[string]domain.NotificationPreference
}

func (f *fakeInbox) Create(_ context.Context, notification *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	notification.ID = "n-1"
	notification.CreatedAt = time.Now()
	f.notifications = append(f.notifications, *notification)
	return nil
}

func (f *fakeInbox) ListByAccount(_ context.Context, accountID string, _, _ int) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Notification
	for _, n := range f.notifications {
		if n.AccountID == accountID {
			result = append(result, n)
		}
	}
	return result, nil
}

func (f *fakeInbox) MarkRead(_ context.Context, _, _ string) error { return nil }

func (f *fakeInbox) CountUnread(_ context.Context, accountID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, n := range f.notifications {
		if n.AccountID == accountID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (f *fakeInbox) GetPreference(_ context.Context, accountID string) (*domain.NotificationPreference, error) {
	pref, ok := f.preferences[accountID]
	if !ok {
		return nil, nil
	}
	return &pref, nil
}

func (f *fakeInbox) UpsertPreference(_ context.Context, pref *domain.NotificationPreference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.preferences == nil {
		f.preferences = make(map[string]domain.NotificationPreference)
	}
	f.preferences[pref.AccountID] = *pref
	return nil
}

func newTestDispatcher(t *testing.T, inbox *fakeInbox) (*Dispatcher, *RealtimeHub) {
	t.Helper()
	persons := &fakePersonDirectory{accounts: map[string]domain.Account{
		"req-1": {ID: "acc-1", PersonID: "req-1", Active: true},
	}}
	repo := newFakeTemplates()
	repo.templates["workorder_accepted"] = domain.NotificationTemplate{
		Type:     "workorder_accepted",
		Title:    "{{code}} accepted",
		Body:     "Your order {{code}} was accepted",
		Priority: domain.PriorityNormal,
	}
	registry := newTestRegistry(t, repo)
	hub := NewRealtimeHub(nil, zap.NewNop())
	dispatcher := NewDispatcher(NewIdentityResolver(persons), registry, inbox, hub,
		observability.NewMetrics(), zap.NewNop())
	return dispatcher, hub
}

func TestSendPersistsRenderedNotification(t *testing.T) {
	inbox := &fakeInbox{}
	dispatcher, _ := newTestDispatcher(t, inbox)

	notification, err := dispatcher.Send(context.Background(), SendInput{
		Type:              "workorder_accepted",
		RecipientPersonID: "req-1",
		Data:              map[string]any{"code": "WO-2026-000009"},
	})
	require.NoError(t, err)
	require.NotNil(t, notification)
	require.Equal(t, "acc-1", notification.AccountID)
	require.Equal(t, "WO-2026-000009 accepted", notification.Title)
	// Recipient is offline, so the push fallback channel is recorded.
	require.Equal(t, []domain.Channel{domain.ChannelPush}, notification.Channels)
	require.Len(t, inbox.notifications, 1)
}

func TestSendUsesRealtimeChannelWhenConnected(t *testing.T) {
	inbox := &fakeInbox{}
	dispatcher, hub := newTestDispatcher(t, inbox)
	hub.Connect(context.Background(), "acc-1")

	notification, err := dispatcher.Send(context.Background(), SendInput{
		Type:              "workorder_accepted",
		RecipientPersonID: "req-1",
		Data:              map[string]any{"code": "WO-2026-000010"},
	})
	require.NoError(t, err)
	require.Equal(t, []domain.Channel{domain.ChannelRealtime}, notification.Channels)
}

func TestSendNoAccountIsNoOp(t *testing.T) {
	inbox := &fakeInbox{}
	dispatcher, _ := newTestDispatcher(t, inbox)

	notification, err := dispatcher.Send(context.Background(), SendInput{
		Type:              "workorder_accepted",
		RecipientPersonID: "person-without-login",
	})
	require.NoError(t, err)
	require.Nil(t, notification)
	require.Empty(t, inbox.notifications)
}

func TestSendSystemActorIsNoOp(t *testing.T) {
	inbox := &fakeInbox{}
	dispatcher, _ := newTestDispatcher(t, inbox)

	notification, err := dispatcher.Send(context.Background(), SendInput{
		Type:              "workorder_accepted",
		RecipientPersonID: domain.SystemActorID,
	})
	require.NoError(t, err)
	require.Nil(t, notification)
}

func TestSendRespectsPreferences(t *testing.T) {
	inbox := &fakeInbox{preferences: map[string]domain.NotificationPreference{
		"acc-1": {AccountID: "acc-1", Enabled: true, DisabledTypes: []string{"workorder_accepted"}},
	}}
	dispatcher, _ := newTestDispatcher(t, inbox)

	notification, err := dispatcher.Send(context.Background(), SendInput{
		Type:              "workorder_accepted",
		RecipientPersonID: "req-1",
	})
	require.NoError(t, err)
	require.Nil(t, notification)
	require.Empty(t, inbox.notifications)
}

func TestSendPriorityOverride(t *testing.T) {
	inbox := &fakeInbox{}
	dispatcher, _ := newTestDispatcher(t, inbox)

	high := domain.PriorityHigh
	notification, err := dispatcher.Send(context.Background(), SendInput{
		Type:              "workorder_accepted",
		RecipientPersonID: "req-1",
		Priority:          &high,
	})
	require.NoError(t, err)
	require.Equal(t, domain.PriorityHigh, notification.Priority)
}

func TestSendToManySkipsFailuresAndNoOps(t *testing.T) {
	inbox := &fakeInbox{}
	dispatcher, _ := newTestDispatcher(t, inbox)

	sent := dispatcher.SendToMany(context.Background(), "workorder_accepted",
		[]string{"req-1", "person-without-login", domain.SystemActorID},
		map[string]any{"code": "WO-2026-000011"}, nil)
	require.Len(t, sent, 1)
	require.Equal(t, "acc-1", sent[0].AccountID)
}

func TestWithoutPerformer(t *testing.T) {
	require.Equal(t, []string{"a", "c"}, withoutPerformer([]string{"a", "b", "c"}, "b"))
	require.Equal(t, []string{"a", "b"}, withoutPerformer([]string{"a", "b"}, ""))
	require.Empty(t, withoutPerformer([]string{"b"}, "b"))
}
