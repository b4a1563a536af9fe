package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/kv"
	"github.com/xraph/vectorflow/workflow"
)

// Ensure Store implements every subsystem store at compile time.
// We can't import store here (import cycle with store.Open), so we verify
// each subsystem.
var (
	_ job.Store      = (*Store)(nil)
	_ workflow.Store = (*Store)(nil)
	_ kv.Store       = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs        map[string]*job.Record
	runs        map[string]*workflow.Run
	checkpoints map[string]*checkpointEntry // key: "runID:stepName"
	values      map[string][]byte

	// seq orders checkpoints saved within the same clock tick.
	seq uint64
}

type checkpointEntry struct {
	cp  workflow.Checkpoint
	seq uint64
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:        make(map[string]*job.Record),
		runs:        make(map[string]*workflow.Run),
		checkpoints: make(map[string]*checkpointEntry),
		values:      make(map[string][]byte),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job record.
func (m *Store) CreateJob(_ context.Context, r *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[r.ID]; exists {
		return vectorflow.ErrJobAlreadyExists
	}
	m.jobs[r.ID] = r.Clone()
	return nil
}

// GetJob retrieves a job record by ID.
func (m *Store) GetJob(_ context.Context, jobID string) (*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.jobs[jobID]
	if !ok {
		return nil, vectorflow.ErrJobNotFound
	}
	return r.Clone(), nil
}

// UpdateJob replaces an existing job record.
func (m *Store) UpdateJob(_ context.Context, r *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[r.ID]; !ok {
		return vectorflow.ErrJobNotFound
	}
	m.jobs[r.ID] = r.Clone()
	return nil
}

// DeleteJob removes a job record by ID.
func (m *Store) DeleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.jobs, jobID)
	return nil
}

// ListJobs returns job records matching opts, newest first.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Record, 0, len(m.jobs))
	for _, r := range m.jobs {
		if matchJob(r, opts) {
			result = append(result, r.Clone())
		}
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].ID > result[k].ID
		}
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// CountJobs returns the number of job records matching opts.
func (m *Store) CountJobs(_ context.Context, opts job.ListOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, r := range m.jobs {
		if matchJob(r, opts) {
			count++
		}
	}
	return count, nil
}

func matchJob(r *job.Record, opts job.ListOpts) bool {
	if opts.Namespace != "" && r.Namespace != opts.Namespace {
		return false
	}
	if opts.Kind != "" && r.Kind != opts.Kind {
		return false
	}
	if opts.Status != "" && r.Status != opts.Status {
		return false
	}
	if !opts.CreatedBefore.IsZero() && !r.CreatedAt.Before(opts.CreatedBefore) {
		return false
	}
	return true
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// ──────────────────────────────────────────────────
// Workflow Store
// ──────────────────────────────────────────────────

func cloneRun(r *workflow.Run) *workflow.Run {
	cp := *r
	cp.Input = slices.Clone(r.Input)
	cp.Output = slices.Clone(r.Output)
	cp.Metadata = maps.Clone(r.Metadata)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// CreateRun persists a new workflow run.
func (m *Store) CreateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.ID]; exists {
		return vectorflow.ErrRunAlreadyExists
	}
	m.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun retrieves a workflow run by ID.
func (m *Store) GetRun(_ context.Context, runID string) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID]
	if !ok {
		return nil, vectorflow.ErrRunNotFound
	}
	return cloneRun(r), nil
}

// UpdateRun persists changes to an existing workflow run.
func (m *Store) UpdateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[run.ID]; !ok {
		return vectorflow.ErrRunNotFound
	}
	m.runs[run.ID] = cloneRun(run)
	return nil
}

// ListRuns returns workflow runs matching the given options, oldest first.
func (m *Store) ListRuns(_ context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.State != "" && r.State != opts.State {
			continue
		}
		if opts.Name != "" && r.Name != opts.Name {
			continue
		}
		if opts.JobID != "" && r.JobID != opts.JobID {
			continue
		}
		result = append(result, cloneRun(r))
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].StartedAt.Equal(result[k].StartedAt) {
			return result[i].ID < result[k].ID
		}
		return result[i].StartedAt.Before(result[k].StartedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// DeleteRun removes a run and its checkpoints.
func (m *Store) DeleteRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.runs, runID)
	prefix := runID + ":"
	for k := range m.checkpoints {
		if strings.HasPrefix(k, prefix) {
			delete(m.checkpoints, k)
		}
	}
	return nil
}

// checkpointKey builds a composite map key for a checkpoint.
func checkpointKey(runID, stepName string) string {
	return runID + ":" + stepName
}

// SaveCheckpoint persists checkpoint data for a workflow step.
func (m *Store) SaveCheckpoint(_ context.Context, runID, stepName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.checkpoints[checkpointKey(runID, stepName)] = &checkpointEntry{
		cp: workflow.Checkpoint{
			RunID:     runID,
			StepName:  stepName,
			Data:      slices.Clone(data),
			CreatedAt: time.Now().UTC(),
		},
		seq: m.seq,
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a specific workflow step.
func (m *Store) GetCheckpoint(_ context.Context, runID, stepName string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.checkpoints[checkpointKey(runID, stepName)]
	if !ok {
		return nil, nil // no checkpoint is not an error
	}
	return slices.Clone(e.cp.Data), nil
}

// ListCheckpoints returns all checkpoints for a workflow run in the order
// they were saved.
func (m *Store) ListCheckpoints(_ context.Context, runID string) ([]*workflow.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := runID + ":"
	var entries []*checkpointEntry
	for k, e := range m.checkpoints {
		if strings.HasPrefix(k, prefix) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, k int) bool { return entries[i].seq < entries[k].seq })

	result := make([]*workflow.Checkpoint, len(entries))
	for i, e := range entries {
		cp := e.cp
		cp.Data = slices.Clone(e.cp.Data)
		result[i] = &cp
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// KV Store
// ──────────────────────────────────────────────────

// Get returns the value stored under key.
func (m *Store) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return slices.Clone(v), nil
}

// Put stores value under key.
func (m *Store) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = slices.Clone(value)
	return nil
}

// Delete removes key.
func (m *Store) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}
