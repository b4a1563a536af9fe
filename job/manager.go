package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/id"
)

// CreateOptions carries the optional fields of a new record.
type CreateOptions struct {
	// ID overrides the minted identifier.
	ID       string
	Progress *Progress
	Metadata *Metadata
}

// Patch carries the fields an update may change besides status.
// Error is only kept when the new status is failed.
type Patch struct {
	Error    string
	Progress *Progress
	Metadata *Metadata
}

// Observer is notified after each successful registry write.
type Observer interface {
	JobCreated(ctx context.Context, rec *Record)
	JobUpdated(ctx context.Context, rec *Record, from Status)
	JobsExpired(ctx context.Context, recs []*Record)
}

type nopObserver struct{}

func (nopObserver) JobCreated(context.Context, *Record)         {}
func (nopObserver) JobUpdated(context.Context, *Record, Status) {}
func (nopObserver) JobsExpired(context.Context, []*Record)      {}

// Manager owns every write to the job registry for one namespace.
// It is safe for concurrent use.
type Manager struct {
	store     Store
	namespace string
	logger    *slog.Logger
	observer  Observer
	now       func() time.Time
	locks     keyedMutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNamespace scopes the manager to a registry namespace.
func WithNamespace(ns string) ManagerOption {
	return func(m *Manager) { m.namespace = ns }
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithObserver registers o to be told about every write.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) { m.observer = o }
}

// WithClock replaces time.Now for timestamps and expiry.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a lifecycle manager over store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		namespace: "default",
		logger:    slog.Default(),
		observer:  nopObserver{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Namespace returns the namespace the manager writes to.
func (m *Manager) Namespace() string { return m.namespace }

// Create registers a pending record of the given kind and returns its ID.
func (m *Manager) Create(ctx context.Context, kind Kind, opts CreateOptions) (string, error) {
	if !kind.Valid() {
		return "", &vectorflow.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown job kind %q", kind)}
	}
	jobID := opts.ID
	if jobID == "" {
		jobID = id.New(kind.Prefix()).String()
	}

	now := m.now().UTC()
	rec := &Record{
		ID:        jobID,
		Namespace: m.namespace,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Progress:  opts.Progress,
		Metadata:  opts.Metadata.Clone(),
	}
	if err := m.store.CreateJob(ctx, rec); err != nil {
		return "", fmt.Errorf("create job %s: %w", jobID, err)
	}

	m.logger.Debug("job created",
		slog.String("job_id", jobID),
		slog.String("kind", string(kind)),
	)
	m.observer.JobCreated(ctx, rec.Clone())
	return jobID, nil
}

// Update moves a record to status and applies patch. Updating an ID that
// does not exist is a no-op. Moving a terminal record, or any other
// transition CanTransition rejects, returns vectorflow.ErrInvalidState.
func (m *Manager) Update(ctx context.Context, jobID string, status Status, patch *Patch) error {
	unlock := m.locks.Lock(jobID)
	defer unlock()

	rec, err := m.store.GetJob(ctx, jobID)
	if errors.Is(err, vectorflow.ErrJobNotFound) {
		m.logger.Debug("update for unknown job ignored", slog.String("job_id", jobID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("get job %s: %w", jobID, err)
	}
	if rec.Namespace != m.namespace {
		return nil
	}
	if !CanTransition(rec.Status, status) {
		return fmt.Errorf("%w: job %s %s -> %s", vectorflow.ErrInvalidState, jobID, rec.Status, status)
	}

	from := rec.Status
	now := m.now().UTC()
	rec.Status = status
	rec.UpdatedAt = now
	if patch != nil {
		if patch.Progress != nil {
			p := *patch.Progress
			rec.Progress = &p
		}
		if patch.Metadata != nil {
			rec.Metadata = rec.Metadata.Merge(patch.Metadata)
		}
	}
	if status.IsTerminal() {
		rec.CompletedAt = &now
	}
	if status == StatusFailed {
		rec.Error = "Unknown error"
		if patch != nil && patch.Error != "" {
			rec.Error = patch.Error
		}
	}

	if err := m.store.UpdateJob(ctx, rec); err != nil {
		if errors.Is(err, vectorflow.ErrJobNotFound) {
			return nil
		}
		return fmt.Errorf("update job %s: %w", jobID, err)
	}

	if status.IsTerminal() {
		m.logger.Info("job finished",
			slog.String("job_id", jobID),
			slog.String("kind", string(rec.Kind)),
			slog.String("status", string(status)),
		)
	}
	m.observer.JobUpdated(ctx, rec, from)
	return nil
}

// Get returns the record for jobID, or vectorflow.ErrJobNotFound.
func (m *Manager) Get(ctx context.Context, jobID string) (*Record, error) {
	rec, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec.Namespace != m.namespace {
		return nil, vectorflow.ErrJobNotFound
	}
	return rec, nil
}

// List returns the namespace's records matching opts, newest first.
func (m *Manager) List(ctx context.Context, opts ListOpts) ([]*Record, error) {
	opts.Namespace = m.namespace
	return m.store.ListJobs(ctx, opts)
}

// Count returns the number of the namespace's records matching opts.
func (m *Manager) Count(ctx context.Context, opts ListOpts) (int64, error) {
	opts.Namespace = m.namespace
	return m.store.CountJobs(ctx, opts)
}

// Expire removes terminal records created more than maxAge ago and
// returns how many were removed. Pending and processing records are kept
// regardless of age.
func (m *Manager) Expire(ctx context.Context, maxAge time.Duration) (int, error) {
	removed, err := m.ExpireRecords(ctx, maxAge)
	return len(removed), err
}

// ExpireRecords is Expire returning the removed records.
func (m *Manager) ExpireRecords(ctx context.Context, maxAge time.Duration) ([]*Record, error) {
	cutoff := m.now().UTC().Add(-maxAge)
	candidates, err := m.store.ListJobs(ctx, ListOpts{Namespace: m.namespace, CreatedBefore: cutoff})
	if err != nil {
		return nil, fmt.Errorf("list expirable jobs: %w", err)
	}

	var removed []*Record
	for _, c := range candidates {
		if !c.Status.IsTerminal() {
			continue
		}
		if rec, ok, delErr := m.expireOne(ctx, c.ID, cutoff); delErr != nil {
			return removed, delErr
		} else if ok {
			removed = append(removed, rec)
		}
	}

	if len(removed) > 0 {
		m.logger.Info("expired jobs",
			slog.Int("count", len(removed)),
			slog.Time("cutoff", cutoff),
		)
		m.observer.JobsExpired(ctx, removed)
	}
	return removed, nil
}

func (m *Manager) expireOne(ctx context.Context, jobID string, cutoff time.Time) (*Record, bool, error) {
	unlock := m.locks.Lock(jobID)
	defer unlock()

	rec, err := m.store.GetJob(ctx, jobID)
	if errors.Is(err, vectorflow.ErrJobNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if !rec.Status.IsTerminal() || !rec.CreatedAt.Before(cutoff) {
		return nil, false, nil
	}
	if err := m.store.DeleteJob(ctx, jobID); err != nil {
		return nil, false, fmt.Errorf("delete job %s: %w", jobID, err)
	}
	return rec, true, nil
}

// keyedMutex serializes callers per key. Entries are dropped when the
// last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
