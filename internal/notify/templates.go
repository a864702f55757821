package notify

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/spec-kit/workorder-service/internal/domain"
	"github.com/spec-kit/workorder-service/internal/repository"
	"github.com/spec-kit/workorder-service/internal/worker"
)

const placeholderTitle = "{{code}}: update"
const placeholderBody = "Work order {{code}} changed. An administrator has not configured this notification yet."

// TemplateRegistry is the cache-backed template lookup. Unknown types are
// auto-created as flagged placeholders so a notification is never lost to a
// missing template; the cache is invalidated explicitly on admin edits.
type TemplateRegistry struct {
	templates repository.TemplateRepository
	cache     *gocache.Cache
	pool      *worker.Pool
	logger    *zap.Logger
}

// NewTemplateRegistry constructs the registry.
func NewTemplateRegistry(templates repository.TemplateRepository, ttl time.Duration, pool *worker.Pool, logger *zap.Logger) *TemplateRegistry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TemplateRegistry{
		templates: templates,
		cache:     gocache.New(ttl, 10*time.Minute),
		pool:      pool,
		logger:    logger,
	}
}

// Warm preloads the cache from the persisted registry.
func (r *TemplateRegistry) Warm(ctx context.Context) error {
	list, err := r.templates.List(ctx, 500, 0)
	if err != nil {
		return err
	}
	for i := range list {
		template := list[i]
		r.cache.SetDefault(template.Type, &template)
	}
	r.logger.Info("template cache warmed", zap.Int("count", len(list)))
	return nil
}

// GetOrCreate returns the template for the type, reading cache first, then
// the persisted registry, then synthesizing a placeholder.
func (r *TemplateRegistry) GetOrCreate(ctx context.Context, templateType string) (*domain.NotificationTemplate, error) {
	if cached, ok := r.cache.Get(templateType); ok {
		if template, ok := cached.(*domain.NotificationTemplate); ok {
			return template, nil
		}
	}

	template, err := r.templates.GetByType(ctx, templateType)
	if err == pgx.ErrNoRows {
		template = &domain.NotificationTemplate{
			Type:        templateType,
			Title:       placeholderTitle,
			Body:        placeholderBody,
			Channels:    []domain.Channel{domain.ChannelRealtime},
			Priority:    domain.PriorityNormal,
			AutoCreated: true,
		}
		if createErr := r.templates.Create(ctx, template); createErr != nil {
			return nil, createErr
		}
		r.logger.Warn("auto-created placeholder template; administrator must configure it",
			zap.String("type", templateType))
	} else if err != nil {
		return nil, err
	}

	r.cache.SetDefault(templateType, template)
	return template, nil
}

// RecordUsage bumps the usage counter without blocking the caller.
func (r *TemplateRegistry) RecordUsage(templateType string) {
	r.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.templates.IncrementUsage(ctx, templateType); err != nil {
			r.logger.Warn("template usage update failed",
				zap.String("type", templateType), zap.Error(err))
		}
	})
}

// Invalidate evicts one type after an admin edit.
func (r *TemplateRegistry) Invalidate(templateType string) {
	r.cache.Delete(templateType)
}

// InvalidateAll clears the cache.
func (r *TemplateRegistry) InvalidateAll() {
	r.cache.Flush()
}
