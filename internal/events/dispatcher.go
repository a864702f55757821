package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/workorder-service/internal/domain"
	"github.com/spec-kit/workorder-service/internal/worker"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher decouples the state machine from the notification pipeline.
// Publish is detached: handlers run on the worker pool, their errors are
// logged and never reach the publisher.
type Dispatcher interface {
	Publish(ctx context.Context, event Event)
	Subscribe(trigger domain.TriggerKey, handler EventHandler)
	SubscribeAll(handler EventHandler)
}

type asyncDispatcher struct {
	mu        sync.RWMutex
	listeners map[domain.TriggerKey][]EventHandler
	catchAll  []EventHandler
	pool      *worker.Pool
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher backed by the given pool.
func NewDispatcher(pool *worker.Pool, logger *zap.Logger) Dispatcher {
	return &asyncDispatcher{
		listeners: make(map[domain.TriggerKey][]EventHandler),
		pool:      pool,
		logger:    logger,
	}
}

// Publish hands the event to subscribed handlers on the worker pool. The
// request context may be gone by the time a handler runs, so handlers get a
// fresh background context.
func (d *asyncDispatcher) Publish(_ context.Context, event Event) {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.catchAll...)
	handlers = append(handlers, d.listeners[event.Trigger]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		h := handler
		d.pool.Submit(func() {
			if err := h(context.Background(), event); err != nil {
				d.logger.Error("event handler failed",
					zap.String("trigger", string(event.Trigger)),
					zap.String("work_order_id", event.WorkOrderID),
					zap.Error(err))
			}
		})
	}
}

// Subscribe registers a handler for one trigger key.
func (d *asyncDispatcher) Subscribe(trigger domain.TriggerKey, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[trigger] = append(d.listeners[trigger], handler)
}

// SubscribeAll registers a handler for every trigger key.
func (d *asyncDispatcher) SubscribeAll(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.catchAll = append(d.catchAll, handler)
}
