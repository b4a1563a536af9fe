package cron

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Task is the work fired on each tick. The context is cancelled when
// the scheduler stops.
type Task func(ctx context.Context) error

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLocation interprets schedules in loc instead of UTC.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) { s.loc = loc }
}

// WithTaskTimeout bounds each firing. Zero means no bound.
func WithTaskTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.taskTimeout = d }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Entry describes one registered task.
type Entry struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev,omitempty"`
}

// Scheduler fires registered tasks on their schedules.
type Scheduler struct {
	logger      *slog.Logger
	loc         *time.Location
	taskTimeout time.Duration

	c *cronlib.Cron

	mu      sync.Mutex
	entries map[string]registered

	ctx    context.Context
	cancel context.CancelFunc
}

type registered struct {
	id   cronlib.EntryID
	expr string
}

// NewScheduler creates a Scheduler. Nothing fires until Start.
func NewScheduler(logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		logger:  logger,
		loc:     time.UTC,
		entries: make(map[string]registered),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.c = cronlib.New(
		cronlib.WithParser(cronParser),
		cronlib.WithLocation(s.loc),
		cronlib.WithChain(cronlib.SkipIfStillRunning(cronlib.DiscardLogger)),
	)
	return s
}

// Register adds a named task. Registering an existing name replaces its
// schedule and task.
func (s *Scheduler) Register(name, expr string, task Task) error {
	if name == "" {
		return fmt.Errorf("cron: task name is required")
	}
	sched, err := ParseSchedule(expr)
	if err != nil {
		return fmt.Errorf("cron: parse schedule %q for %s: %w", expr, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries[name]; ok {
		s.c.Remove(prev.id)
	}
	id := s.c.Schedule(sched, cronlib.FuncJob(func() { s.fire(name, task) }))
	s.entries[name] = registered{id: id, expr: expr}

	s.logger.Info("cron task registered",
		slog.String("task", name),
		slog.String("schedule", expr),
	)
	return nil
}

// Start begins firing tasks in the background.
func (s *Scheduler) Start() { s.c.Start() }

// Stop stops scheduling, cancels running tasks and waits for them to
// return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.c.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries returns the registered tasks sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for name, r := range s.entries {
		e := s.c.Entry(r.id)
		out = append(out, Entry{Name: name, Schedule: r.expr, Next: e.Next, Prev: e.Prev})
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (s *Scheduler) fire(name string, task Task) {
	ctx := s.ctx
	if s.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cron task panicked",
				slog.String("task", name),
				slog.Any("panic", r),
			)
		}
	}()
	if err := task(ctx); err != nil {
		s.logger.Error("cron task failed",
			slog.String("task", name),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("cron task fired",
		slog.String("task", name),
		slog.Duration("elapsed", time.Since(start)),
	)
}
