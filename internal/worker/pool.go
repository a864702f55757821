package worker

import (
	"sync"

	"go.uber.org/zap"
)

// Pool is a bounded worker pool for fire-and-forget tasks. Notification
// dispatch runs here so a slow or failing delivery never delays the request
// that triggered it, and a burst of events cannot spawn unbounded goroutines.
type Pool struct {
	tasks   chan func()
	logger  *zap.Logger
	wg      sync.WaitGroup
	once    sync.Once
	stopped chan struct{}
}

// NewPool creates a pool with the given worker count and queue size.
func NewPool(workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	p := &Pool{
		tasks:   make(chan func(), queueSize),
		logger:  logger,
		stopped: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.invoke(task)
	}
}

func (p *Pool) invoke(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in background task", zap.Any("panic", r))
		}
	}()
	task()
}

// Submit enqueues a task. It never blocks: when the queue is full the task is
// dropped and false is returned, which callers log and accept (best-effort
// delivery, per the notification contract).
func (p *Pool) Submit(task func()) bool {
	select {
	case <-p.stopped:
		return false
	default:
	}
	select {
	case p.tasks <- task:
		return true
	default:
		p.logger.Warn("worker queue full; task dropped")
		return false
	}
}

// Stop drains queued tasks and waits for workers to finish.
func (p *Pool) Stop() {
	p.once.Do(func() {
		close(p.stopped)
		close(p.tasks)
	})
	p.wg.Wait()
}
