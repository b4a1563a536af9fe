// Package worker provides a bounded pool of goroutines that executes
// background work (workflow runs and sub-jobs) with graceful shutdown.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolStopped is returned by Submit when the pool is not running.
var ErrPoolStopped = errors.New("worker: pool stopped")

// Task is a unit of work executed by the pool. The context is cancelled
// when the pool shuts down past its deadline.
type Task func(ctx context.Context)

type queued struct {
	key  string
	task Task
}

// Pool manages a fixed set of worker goroutines that pull submitted
// tasks from a buffered queue.
type Pool struct {
	concurrency int
	queueSize   int
	logger      *slog.Logger

	queue      chan queued
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[uint64]activeTask
	activeMu   sync.Mutex
	seq        uint64
}

type activeTask struct {
	key    string
	cancel context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithQueueSize sets how many submitted tasks may wait for a worker
// before Submit blocks.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n >= 0 {
			p.queueSize = n
		}
	}
}

// NewPool creates a worker pool. Call Start before submitting work.
func NewPool(logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		concurrency: 10,
		queueSize:   256,
		logger:      logger,
		activeJobs:  make(map[uint64]activeTask),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.queue = make(chan queued, p.queueSize)
	p.stopCh = make(chan struct{})

	p.logger.Info("worker pool starting", slog.Int("concurrency", p.concurrency))

	for range p.concurrency {
		p.wg.Add(1)
		go p.loop(p.queue, p.stopCh)
	}
	return nil
}

// Submit enqueues a task. It blocks while the queue is full and returns
// ErrPoolStopped if the pool is not running or stops while waiting.
func (p *Pool) Submit(ctx context.Context, key string, task func(ctx context.Context)) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	queue, stopCh := p.queue, p.stopCh
	p.mu.Unlock()

	select {
	case queue <- queued{key: key, task: task}:
		return nil
	case <-stopCh:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals all workers to stop and waits for them to finish their
// current task. Tasks still queued are dropped. If the context has a
// deadline, active tasks are cancelled when time runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.logger.Info("worker pool stopping")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active tasks")
		p.cancelActiveJobs()
		<-done
	}

	if dropped := len(p.queue); dropped > 0 {
		p.logger.Warn("worker pool dropped queued tasks", slog.Int("count", dropped))
	}
	return nil
}

// Active returns the number of tasks currently executing.
func (p *Pool) Active() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return len(p.activeJobs)
}

func (p *Pool) loop(queue <-chan queued, stopCh <-chan struct{}) {
	defer p.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		case q := <-queue:
			p.run(q)
		}
	}
}

func (p *Pool) run(q queued) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seq := p.trackJob(q.key, cancel)
	defer p.untrackJob(seq)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panicked",
				slog.String("key", q.key),
				slog.Any("panic", r),
			)
		}
	}()
	q.task(ctx)
}

func (p *Pool) trackJob(key string, cancel context.CancelFunc) uint64 {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	p.seq++
	p.activeJobs[p.seq] = activeTask{key: key, cancel: cancel}
	return p.seq
}

func (p *Pool) untrackJob(seq uint64) {
	p.activeMu.Lock()
	delete(p.activeJobs, seq)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for _, t := range p.activeJobs {
		p.logger.Warn("cancelling active task", slog.String("key", t.key))
		t.cancel()
	}
}
