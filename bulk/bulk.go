// Package bulk fans one request out into a parent job and one child job
// per item.
//
// A failing item never aborts the batch: returned errors and panics are
// recorded as failed child jobs and every other item proceeds. The parent
// is left processing; its aggregate state is derived on demand by
// Summarize from the child records.
package bulk

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/vectorflow/job"
)

// DefaultMaxItems caps a batch when the caller passes no limit.
const DefaultMaxItems = 50

// Op processes one item. childID names the pending child record created
// for the item; op is expected to dispatch work that moves it forward.
type Op[T any] func(ctx context.Context, childID string, item T) error

// Coordinator creates bulk parent and child jobs through a job.Manager.
type Coordinator struct {
	jobs        *job.Manager
	logger      *slog.Logger
	concurrency int
	maxItems    int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConcurrency bounds how many items run at once.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithMaxItems sets the default cap applied when CreateBulk is given a
// non-positive maxItems.
func WithMaxItems(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxItems = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator returns a Coordinator writing through jobs.
func NewCoordinator(jobs *job.Manager, opts ...Option) *Coordinator {
	c := &Coordinator{
		jobs:        jobs,
		logger:      slog.Default(),
		concurrency: 8,
		maxItems:    DefaultMaxItems,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Jobs returns the manager the coordinator writes through.
func (c *Coordinator) Jobs() *job.Manager { return c.jobs }

// Child is the immediate outcome of one item.
type Child struct {
	Index  int        `json:"index"`
	JobID  string     `json:"jobId,omitempty"`
	Status job.Status `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// Result describes a created batch.
type Result struct {
	ParentID   string  `json:"parentId"`
	TotalItems int     `json:"totalItems"`
	Dropped    int     `json:"dropped,omitempty"`
	Children   []Child `json:"childResults"`
}

// BulkOption configures one CreateBulk call.
type BulkOption func(*bulkConfig)

type bulkConfig struct {
	parentID  string
	childKind job.Kind
}

// WithParentID uses id for the parent record instead of minting one.
func WithParentID(id string) BulkOption {
	return func(b *bulkConfig) { b.parentID = id }
}

// WithChildKind sets the kind of the child records. The default is
// job.KindCreation.
func WithChildKind(k job.Kind) BulkOption {
	return func(b *bulkConfig) { b.childKind = k }
}

// CreateBulk registers a pending bulk parent, runs op once per item with
// bounded concurrency, records the child IDs on the parent and moves it
// to processing.
//
// Items beyond maxItems are dropped without error; the count is logged
// and reported as Result.Dropped. A non-positive maxItems uses the
// coordinator's default. The returned error is non-nil only when the
// parent itself cannot be written.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func CreateBulk[T any](ctx context.Context, c *Coordinator, items []T, op Op[T], maxItems int, opts ...BulkOption) (*Result, error) {
	cfg := bulkConfig{childKind: job.KindCreation}
	for _, opt := range opts {
		opt(&cfg)
	}
	if maxItems <= 0 {
		maxItems = c.maxItems
	}

	dropped := 0
	if len(items) > maxItems {
		dropped = len(items) - maxItems
		c.logger.Warn("bulk request truncated",
			slog.Int("requested", len(items)),
			slog.Int("max_items", maxItems),
			slog.Int("dropped", dropped),
		)
		items = items[:maxItems]
	}

	parentID, err := c.jobs.Create(ctx, job.KindBulk, job.CreateOptions{
		ID:       cfg.parentID,
		Metadata: &job.Metadata{TotalItems: len(items), Dropped: dropped},
	})
	if err != nil {
		return nil, fmt.Errorf("bulk: create parent: %w", err)
	}

	children := make([]Child, len(items))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, item := range items {
		g.Go(func() error {
			children[i] = runItem(ctx, c, parentID, cfg.childKind, i, item, op)
			return nil
		})
	}
	_ = g.Wait()

	childIDs := make([]string, 0, len(children))
	childIndexes := make([]int, 0, len(children))
	failed := 0
	for _, ch := range children {
		if ch.JobID != "" {
			childIDs = append(childIDs, ch.JobID)
			childIndexes = append(childIndexes, ch.Index)
		}
		if ch.Status == job.StatusFailed {
			failed++
		}
	}

	if err := c.jobs.Update(ctx, parentID, job.StatusProcessing, &job.Patch{
		Metadata: &job.Metadata{ChildIDs: childIDs, ChildIndexes: childIndexes},
	}); err != nil {
		return nil, fmt.Errorf("bulk: update parent %s: %w", parentID, err)
	}

	c.logger.Info("bulk job dispatched",
		slog.String("job_id", parentID),
		slog.Int("items", len(items)),
		slog.Int("failed", failed),
	)
	return &Result{
		ParentID:   parentID,
		TotalItems: len(items),
		Dropped:    dropped,
		Children:   children,
	}, nil
}

func runItem[T any](ctx context.Context, c *Coordinator, parentID string, kind job.Kind, index int, item T, op Op[T]) Child {
	ch := Child{Index: index, Status: job.StatusPending}

	childID, err := c.jobs.Create(ctx, kind, job.CreateOptions{
		Metadata: &job.Metadata{ParentID: parentID},
	})
	if err != nil {
		ch.Status = job.StatusFailed
		ch.Error = err.Error()
		return ch
	}
	ch.JobID = childID

	if err := protect(ctx, childID, item, op); err != nil {
		c.logger.Warn("bulk item failed",
			slog.String("job_id", parentID),
			slog.String("child_id", childID),
			slog.Int("index", index),
			slog.String("error", err.Error()),
		)
		ch.Status = job.StatusFailed
		ch.Error = err.Error()
		if updErr := c.jobs.Update(ctx, childID, job.StatusFailed, &job.Patch{Error: ch.Error}); updErr != nil {
			c.logger.Error("failed to mark bulk child failed",
				slog.String("child_id", childID),
				slog.String("error", updErr.Error()),
			)
		}
		return ch
	}

	if rec, getErr := c.jobs.Get(ctx, childID); getErr == nil {
		ch.Status = rec.Status
		ch.Error = rec.Error
	}
	return ch
}

// protect runs op and turns a panic, whatever its value, into an error.
func protect[T any](ctx context.Context, childID string, item T, op Op[T]) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", rec)
		}
	}()
	return op(ctx, childID, item)
}
