// Package local provides an in-process external.Engine whose sub-jobs
// are durable workflow runs.
//
// Each sub-job is a run of one registered workflow, started with the
// sub-job ID as its run ID. Creating an ID that already exists returns
// the existing run, so a resumed caller re-attaches instead of starting
// the work twice. Sub-jobs keep running after a caller stops waiting.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/external"
	"github.com/xraph/vectorflow/workflow"
)

// Engine starts sub-jobs as runs of a single workflow.
type Engine struct {
	runner   *workflow.Runner
	workflow string
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCreateRate limits sub-job creation to r per second with the given
// burst. A zero rate disables the limit.
func WithCreateRate(r float64, burst int) Option {
	return func(e *Engine) {
		if r <= 0 {
			e.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New returns an Engine that runs workflowName on runner.
func New(runner *workflow.Runner, workflowName string, opts ...Option) *Engine {
	e := &Engine{
		runner:   runner,
		workflow: workflowName,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Workflow returns the name of the workflow backing the engine.
func (e *Engine) Workflow() string { return e.workflow }

// Create spawns a run with ID id and the given JSON params.
func (e *Engine) Create(ctx context.Context, id string, params json.RawMessage) (external.Handle, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("local engine %s: wait for create slot: %w", e.workflow, err)
		}
	}

	run, err := e.runner.SpawnRaw(ctx, e.workflow, params, workflow.WithRunID(id))
	switch {
	case errors.Is(err, vectorflow.ErrRunAlreadyExists):
		e.logger.Debug("sub-job already exists",
			slog.String("workflow", e.workflow),
			slog.String("sub_job", id),
		)
		return e.Get(ctx, id)
	case err != nil && run == nil:
		return nil, fmt.Errorf("local engine %s: create %s: %w", e.workflow, id, err)
	case err != nil:
		// Persisted but not scheduled; ResumeAll will pick it up.
		e.logger.Warn("sub-job persisted but not scheduled",
			slog.String("workflow", e.workflow),
			slog.String("sub_job", id),
			slog.String("error", err.Error()),
		)
	}
	return &handle{id: id, store: e.runner.Store()}, nil
}

// Get returns the handle of an existing sub-job.
func (e *Engine) Get(ctx context.Context, id string) (external.Handle, error) {
	if _, err := e.runner.Get(ctx, id); err != nil {
		return nil, fmt.Errorf("local engine %s: get %s: %w", e.workflow, id, err)
	}
	return &handle{id: id, store: e.runner.Store()}, nil
}

type handle struct {
	id    string
	store workflow.Store
}

func (h *handle) ID() string { return h.id }

func (h *handle) Status(ctx context.Context) (external.Snapshot, error) {
	run, err := h.store.GetRun(ctx, h.id)
	if err != nil {
		return external.Snapshot{}, fmt.Errorf("sub-job %s status: %w", h.id, err)
	}
	return snapshot(run), nil
}

func snapshot(run *workflow.Run) external.Snapshot {
	switch run.State {
	case workflow.RunStateCompleted:
		return external.Snapshot{Status: external.StatusComplete, Output: run.Output}
	case workflow.RunStateFailed:
		return external.Snapshot{Status: external.StatusErrored, Error: run.Error}
	default:
		return external.Snapshot{Status: external.StatusRunning}
	}
}

var _ external.Engine = (*Engine)(nil)
