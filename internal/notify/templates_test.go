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
	"github.com/spec-kit/workorder-service/internal/worker"
)

type fakeTemplates struct {
	mu        sync.Mutex
	templates map[string]domain.NotificationTemplate
	creates   int
	gets      int
}

func newFakeTemplates() *fakeTemplates {
	return &fakeTemplates{templates: make(map[string]domain.NotificationTemplate)}
}

func (f *fakeTemplates) GetByType(_ context.Context, templateType string) (*domain.NotificationTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	template, ok := f.templates[templateType]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &template, nil
}

func (f *fakeTemplates) Create(_ context.Context, template *domain.NotificationTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if existing, ok := f.templates[template.Type]; ok {
		*template = existing
		return nil
	}
	template.ID = "tpl-" + template.Type
	f.templates[template.Type] = *template
	return nil
}

func (f *fakeTemplates) Update(_ context.Context, template *domain.NotificationTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.templates[template.Type]; !ok {
		return pgx.ErrNoRows
	}
	f.templates[template.Type] = *template
	return nil
}

func (f *fakeTemplates) List(_ context.Context, _, _ int) ([]domain.NotificationTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]domain.NotificationTemplate, 0, len(f.templates))
	for _, template := range f.templates {
		result = append(result, template)
	}
	return result, nil
}

func (f *fakeTemplates) IncrementUsage(_ context.Context, templateType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	template, ok := f.templates[templateType]
	if !ok {
		return pgx.ErrNoRows
	}
	template.UsageCount++
	f.templates[templateType] = template
	return nil
}

func newTestRegistry(t *testing.T, repo *fakeTemplates) *TemplateRegistry {
	t.Helper()
	pool := worker.NewPool(1, 8, zap.NewNop())
	t.Cleanup(pool.Stop)
	return NewTemplateRegistry(repo, time.Minute, pool, zap.NewNop())
}

func TestGetOrCreateReturnsStoredTemplate(t *testing.T) {
	repo := newFakeTemplates()
	repo.templates["workorder_accepted"] = domain.NotificationTemplate{
		ID:    "tpl-1",
		Type:  "workorder_accepted",
		Title: "{{code}} accepted",
		Body:  "{{handler}} took your order",
	}
	registry := newTestRegistry(t, repo)

	template, err := registry.GetOrCreate(context.Background(), "workorder_accepted")
	require.NoError(t, err)
	require.Equal(t, "{{code}} accepted", template.Title)
	require.False(t, template.AutoCreated)
	require.Zero(t, repo.creates)
}

func TestGetOrCreateAutoCreatesPlaceholderOnce(t *testing.T) {
	repo := newFakeTemplates()
	registry := newTestRegistry(t, repo)

	template, err := registry.GetOrCreate(context.Background(), "workorder_mystery")
	require.NoError(t, err)
	require.True(t, template.AutoCreated)
	require.Contains(t, template.Body, "administrator")
	require.Equal(t, 1, repo.creates)

	// Second lookup is served from cache without touching the repository.
	gets := repo.gets
	again, err := registry.GetOrCreate(context.Background(), "workorder_mystery")
	require.NoError(t, err)
	require.Same(t, template, again)
	require.Equal(t, gets, repo.gets)
	require.Equal(t, 1, repo.creates)
}

func TestInvalidateForcesReload(t *testing.T) {
	repo := newFakeTemplates()
	repo.templates["workorder_closed"] = domain.NotificationTemplate{Type: "workorder_closed", Title: "old title"}
	registry := newTestRegistry(t, repo)

	template, err := registry.GetOrCreate(context.Background(), "workorder_closed")
	require.NoError(t, err)
	require.Equal(t, "old title", template.Title)

	repo.mu.Lock()
	repo.templates["workorder_closed"] = domain.NotificationTemplate{Type: "workorder_closed", Title: "new title"}
	repo.mu.Unlock()

	// Still cached.
	template, err = registry.GetOrCreate(context.Background(), "workorder_closed")
	require.NoError(t, err)
	require.Equal(t, "old title", template.Title)

	registry.Invalidate("workorder_closed")
	template, err = registry.GetOrCreate(context.Background(), "workorder_closed")
	require.NoError(t, err)
	require.Equal(t, "new title", template.Title)
}

func TestWarmPreloadsCache(t *testing.T) {
	repo := newFakeTemplates()
	repo.templates["workorder_created"] = domain.NotificationTemplate{Type: "workorder_created", Title: "t"}
	registry := newTestRegistry(t, repo)

	require.NoError(t, registry.Warm(context.Background()))
	gets := repo.gets
	_, err := registry.GetOrCreate(context.Background(), "workorder_created")
	require.NoError(t, err)
	require.Equal(t, gets, repo.gets)
}
