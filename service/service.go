package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/backoff"
	"github.com/xraph/vectorflow/bulk"
	"github.com/xraph/vectorflow/engine"
	"github.com/xraph/vectorflow/external"
	"github.com/xraph/vectorflow/external/local"
	"github.com/xraph/vectorflow/id"
	"github.com/xraph/vectorflow/inference"
	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/kv"
	"github.com/xraph/vectorflow/source"
	"github.com/xraph/vectorflow/vectorindex"
	"github.com/xraph/vectorflow/workflow"
)

// Default query size.
const DefaultTopK = 10

// Deps are the external capabilities the workflows call.
type Deps struct {
	Embedder inference.Embedder
	Index    vectorindex.Index
	// Source is optional; without it sync jobs are rejected.
	Source source.Source
}

// Service registers the domain workflows on an engine and exposes the
// job operations.
type Service struct {
	eng      *engine.Engine
	jobs     *job.Manager
	embedder inference.Embedder
	index    vectorindex.Index
	source   source.Source
	kv       kv.Store
	logger   *slog.Logger

	model     string
	namespace string
	retry     backoff.RetryPolicy

	embedEngine external.Engine
	storeEngine external.Engine
}

// Option configures a Service.
type Option func(*Service)

// WithEmbedEngine runs embed sub-jobs on e instead of the engine's
// in-process sub-job runner.
func WithEmbedEngine(e external.Engine) Option {
	return func(s *Service) { s.embedEngine = e }
}

// WithStoreEngine runs store sub-jobs on e instead of the engine's
// in-process sub-job runner.
func WithStoreEngine(e external.Engine) Option {
	return func(s *Service) { s.storeEngine = e }
}

// New registers every workflow and the job recorder on eng. Call it
// before eng.Start.
func New(eng *engine.Engine, deps Deps, opts ...Option) (*Service, error) {
	if deps.Embedder == nil {
		return nil, errors.New("service: an embedder is required")
	}
	if deps.Index == nil {
		return nil, errors.New("service: a vector index is required")
	}
	cfg := eng.Config()
	retry := backoff.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
	if err := retry.Validate(); err != nil {
		return nil, fmt.Errorf("service: retry config: %w", err)
	}

	s := &Service{
		eng:       eng,
		jobs:      eng.Jobs(),
		embedder:  deps.Embedder,
		index:     deps.Index,
		source:    deps.Source,
		kv:        kv.Namespaced(eng.Store(), "vectorflow:"+cfg.Namespace),
		logger:    eng.Logger(),
		model:     cfg.Inference.Model,
		namespace: cfg.Namespace,
		retry:     retry,
	}
	localOpts := []local.Option{
		local.WithCreateRate(cfg.External.CreateRate, 1),
		local.WithLogger(s.logger),
	}
	s.embedEngine = local.New(eng.SubRunner(), WorkflowEmbedText, localOpts...)
	s.storeEngine = local.New(eng.SubRunner(), WorkflowStoreVector, localOpts...)
	for _, opt := range opts {
		opt(s)
	}

	engine.RegisterSubWorkflow(eng, workflow.NewWorkflow(WorkflowEmbedText, s.embedText))
	engine.RegisterSubWorkflow(eng, workflow.NewWorkflow(WorkflowStoreVector, s.storeVector))
	engine.RegisterWorkflow(eng, workflow.NewWorkflow(WorkflowCreateVector, s.createVector))
	engine.RegisterWorkflow(eng, workflow.NewWorkflow(WorkflowDeleteVectors, s.deleteVectors))
	engine.RegisterWorkflow(eng, workflow.NewWorkflow(WorkflowProcessFile, s.processFile))
	engine.RegisterWorkflow(eng, workflow.NewWorkflow(WorkflowSyncItem, s.syncItemWorkflow))
	engine.RegisterWorkflow(eng, workflow.NewWorkflow(WorkflowSyncSource, s.syncSource))

	eng.Extensions().Register(&jobRecorder{jobs: s.jobs})
	return s, nil
}

// Engine returns the underlying engine.
func (s *Service) Engine() *engine.Engine { return s.eng }

// CreateJob validates req, registers a pending job and dispatches its
// workflow. Invalid requests return a *vectorflow.ValidationError and
// leave no record behind.
func (s *Service) CreateJob(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	switch p := req.Payload.(type) {
	case CreateVector:
		return s.dispatch(ctx, req.JobID, job.KindCreation, WorkflowCreateVector, p)
	case DeleteVectors:
		return s.dispatch(ctx, req.JobID, job.KindDeletion, WorkflowDeleteVectors, p)
	case ProcessFile:
		return s.dispatch(ctx, req.JobID, job.KindFileProcessing, WorkflowProcessFile, p)
	case Sync:
		if s.source == nil {
			return nil, &vectorflow.ValidationError{Field: "kind", Message: "no content source is configured"}
		}
		return s.dispatch(ctx, req.JobID, job.KindSync, WorkflowSyncSource, p)
	case Bulk:
		return s.createBulk(ctx, req.JobID, p)
	}
	return nil, &vectorflow.ValidationError{Field: "kind", Message: fmt.Sprintf("unsupported payload %T", req.Payload)}
}

func (s *Service) dispatch(ctx context.Context, jobID string, kind job.Kind, name string, payload any) (*CreateResponse, error) {
	jobID, err := s.jobs.Create(ctx, kind, job.CreateOptions{ID: jobID})
	if err != nil {
		return nil, err
	}
	runID, err := s.start(ctx, jobID, name, payload)
	if err != nil {
		if updErr := s.jobs.Update(ctx, jobID, job.StatusFailed, &job.Patch{Error: err.Error()}); updErr != nil {
			s.logger.Error("failed to mark undispatched job failed",
				slog.String("job_id", jobID),
				slog.String("error", updErr.Error()),
			)
		}
		return nil, err
	}
	return &CreateResponse{JobID: jobID, ExternalHandleID: runID, Status: job.StatusProcessing}, nil
}

// start moves jobID to processing and spawns its run. The job goes to
// processing first so the run can never finish against a pending record.
func (s *Service) start(ctx context.Context, jobID, name string, payload any) (string, error) {
	input, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s input: %w", name, err)
	}
	runID := id.NewRunID().String()
	if err := s.jobs.Update(ctx, jobID, job.StatusProcessing, &job.Patch{
		Progress: &job.Progress{CurrentStep: "dispatched"},
		Metadata: &job.Metadata{RunID: runID},
	}); err != nil {
		return "", err
	}

	run, err := s.eng.Runner().SpawnRaw(ctx, name, input, workflow.WithRunID(runID), workflow.WithJobID(jobID))
	if err != nil {
		if run != nil {
			// Persisted in the running state; ResumeAll picks it up.
			s.logger.Warn("run persisted but not scheduled",
				slog.String("job_id", jobID),
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
			return runID, nil
		}
		return "", fmt.Errorf("dispatch job %s: %w", jobID, err)
	}
	return runID, nil
}

// BulkCreated reports the children of a new bulk job.
type BulkCreated = bulk.Result

func (s *Service) createBulk(ctx context.Context, jobID string, req Bulk) (*CreateResponse, error) {
	opts := []bulk.BulkOption{}
	if jobID != "" {
		opts = append(opts, bulk.WithParentID(jobID))
	}

	var res *bulk.Result
	var err error
	if len(req.Items) > 0 {
		opts = append(opts, bulk.WithChildKind(job.KindSync))
		res, err = bulk.CreateBulk(ctx, s.eng.Bulk(), req.Items,
			func(ctx context.Context, childID string, item source.Item) error {
				_, startErr := s.start(ctx, childID, WorkflowSyncItem, SyncItemInput{
					Item:      item,
					Namespace: req.Namespace,
					Model:     req.Model,
				})
				return startErr
			}, req.MaxItems, opts...)
	} else {
		res, err = bulk.CreateBulk(ctx, s.eng.Bulk(), req.Vectors,
			func(ctx context.Context, childID string, v CreateVector) error {
				if v.Namespace == "" {
					v.Namespace = req.Namespace
				}
				if v.Model == "" {
					v.Model = req.Model
				}
				_, startErr := s.start(ctx, childID, WorkflowCreateVector, v)
				return startErr
			}, req.MaxItems, opts...)
	}
	if err != nil {
		return nil, err
	}
	return &CreateResponse{JobID: res.ParentID, Status: job.StatusProcessing, Bulk: res}, nil
}

// GetJobStatus returns the job record, or vectorflow.ErrJobNotFound.
func (s *Service) GetJobStatus(ctx context.Context, jobID string) (*job.Record, error) {
	return s.jobs.Get(ctx, jobID)
}

// ListRequest filters ListJobs.
type ListRequest struct {
	Kind   job.Kind
	Status job.Status
	Limit  int
	Offset int
}

func (r ListRequest) validate() error {
	if r.Kind != "" && !r.Kind.Valid() {
		return &vectorflow.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown job kind %q", r.Kind)}
	}
	switch r.Status {
	case "", job.StatusPending, job.StatusProcessing, job.StatusCompleted, job.StatusFailed:
	default:
		return &vectorflow.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", r.Status)}
	}
	if r.Limit < 0 || r.Offset < 0 {
		return &vectorflow.ValidationError{Field: "limit", Message: "limit and offset must not be negative"}
	}
	return nil
}

// ListJobs returns the namespace's job records, newest first.
func (s *Service) ListJobs(ctx context.Context, req ListRequest) ([]*job.Record, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	return s.jobs.List(ctx, job.ListOpts{
		Kind:   req.Kind,
		Status: req.Status,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
}

// CountJobs counts the records matching req's filters. Limit and Offset
// are ignored.
func (s *Service) CountJobs(ctx context.Context, req ListRequest) (int64, error) {
	if err := req.validate(); err != nil {
		return 0, err
	}
	return s.jobs.Count(ctx, job.ListOpts{Kind: req.Kind, Status: req.Status})
}

// Cleanup removes terminal jobs created more than maxAgeHours ago and
// returns how many were removed. In-flight jobs are never removed.
func (s *Service) Cleanup(ctx context.Context, maxAgeHours int) (int, error) {
	if maxAgeHours < 0 {
		return 0, &vectorflow.ValidationError{Field: "maxAgeHours", Message: "must not be negative"}
	}
	return s.jobs.Expire(ctx, time.Duration(maxAgeHours)*time.Hour)
}

// BulkSummary derives the state of a bulk job from its children. Once
// every child is terminal the parent is marked completed; it is never
// marked failed.
func (s *Service) BulkSummary(ctx context.Context, jobID string) (*bulk.Summary, error) {
	sum, err := s.eng.Bulk().Summarize(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if sum.Aggregate != bulk.AggregateProcessing && sum.Status == job.StatusProcessing {
		err := s.jobs.Update(ctx, jobID, job.StatusCompleted, &job.Patch{
			Metadata: &job.Metadata{
				Count: sum.Counts.Completed,
				Extra: map[string]any{"failed": sum.Counts.Failed},
			},
		})
		if err != nil && !errors.Is(err, vectorflow.ErrInvalidState) {
			return nil, err
		}
		sum.Status = job.StatusCompleted
	}
	return sum, nil
}

// Timeline returns the checkpointed steps of a run.
func (s *Service) Timeline(ctx context.Context, runID string) ([]workflow.TimelineEntry, error) {
	if _, err := s.eng.Runner().Get(ctx, runID); err != nil {
		return nil, err
	}
	return s.eng.Runner().GetTimeline(ctx, runID)
}

// QueryResponse holds the matches of a query, best first.
type QueryResponse struct {
	Matches []vectorindex.Match `json:"matches"`
}

// Query embeds the text (unless a vector is given) and searches the
// index. Queries are synchronous and leave no job record.
func (s *Service) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	vec := req.Vector
	if len(vec) == 0 {
		var err error
		vec, err = s.embed(ctx, req.Text, req.Model)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
	}
	topK := req.TopK
	if topK == 0 {
		topK = DefaultTopK
	}
	matches, err := s.index.Query(ctx, vec, vectorindex.QueryOptions{
		TopK:      topK,
		Namespace: s.namespaceOr(req.Namespace),
		Filter:    req.Filter,
	})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	if matches == nil {
		matches = []vectorindex.Match{}
	}
	return &QueryResponse{Matches: matches}, nil
}

func (s *Service) namespaceOr(ns string) string {
	if ns != "" {
		return ns
	}
	return s.namespace
}
