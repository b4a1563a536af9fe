package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gu "github.com/xraph/go-utils/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/bulk"
	"github.com/xraph/vectorflow/ext"
	"github.com/xraph/vectorflow/job"
	mw "github.com/xraph/vectorflow/middleware"
	"github.com/xraph/vectorflow/observability"
	"github.com/xraph/vectorflow/store"
	"github.com/xraph/vectorflow/worker"
	"github.com/xraph/vectorflow/workflow"
)

const instrumentationName = "github.com/xraph/vectorflow"

// extRunEmitter adapts *ext.Registry to satisfy workflow.RunEmitter.
// workflow defines the interface, ext.Registry provides the
// implementation, and the engine plugs them together.
type extRunEmitter struct {
	r *ext.Registry
}

func (a *extRunEmitter) EmitStepCompleted(ctx context.Context, run *workflow.Run, stepName string, elapsed time.Duration) {
	a.r.EmitWorkflowStepCompleted(ctx, run, stepName, elapsed)
}

func (a *extRunEmitter) EmitStepFailed(ctx context.Context, run *workflow.Run, stepName string, err error) {
	a.r.EmitWorkflowStepFailed(ctx, run, stepName, err)
}

func (a *extRunEmitter) EmitStepRetrying(ctx context.Context, run *workflow.Run, stepName string, attempt int, err error, delay time.Duration) {
	a.r.EmitWorkflowStepRetrying(ctx, run, stepName, attempt, err, delay)
}

func (a *extRunEmitter) EmitWorkflowStarted(ctx context.Context, run *workflow.Run) {
	a.r.EmitWorkflowStarted(ctx, run)
}

func (a *extRunEmitter) EmitWorkflowCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration) {
	a.r.EmitWorkflowCompleted(ctx, run, elapsed)
}

func (a *extRunEmitter) EmitWorkflowFailed(ctx context.Context, run *workflow.Run, err error) {
	a.r.EmitWorkflowFailed(ctx, run, err)
}

func (a *extRunEmitter) EmitWorkflowProgress(ctx context.Context, run *workflow.Run, p workflow.Progress) {
	a.r.EmitWorkflowProgress(ctx, run, p)
}

// extJobObserver translates job.Manager writes into job lifecycle hooks.
type extJobObserver struct {
	r *ext.Registry
}

func (a *extJobObserver) JobCreated(ctx context.Context, rec *job.Record) {
	a.r.EmitJobCreated(ctx, rec)
}

func (a *extJobObserver) JobUpdated(ctx context.Context, rec *job.Record, from job.Status) {
	switch rec.Status {
	case job.StatusProcessing:
		if from == job.StatusPending {
			a.r.EmitJobDispatched(ctx, rec)
		}
	case job.StatusCompleted:
		var elapsed time.Duration
		if rec.CompletedAt != nil {
			elapsed = rec.CompletedAt.Sub(rec.CreatedAt)
		}
		a.r.EmitJobCompleted(ctx, rec, elapsed)
	case job.StatusFailed:
		a.r.EmitJobFailed(ctx, rec)
	}
}

func (a *extJobObserver) JobsExpired(ctx context.Context, recs []*job.Record) {
	a.r.EmitJobsExpired(ctx, recs)
}

// Engine owns the long-lived subsystems of a vectorflow deployment.
// Use Build to create one.
type Engine struct {
	store      store.Store
	config     vectorflow.Config
	extensions *ext.Registry
	logger     *slog.Logger
	mws        []mw.Middleware

	// Parent runs (job workflows).
	pool   *worker.Pool
	runner *workflow.Runner

	// Sub-job runs started through external.Call. They get their own
	// pool so a full parent pool cannot starve the runs it waits on.
	subPool   *worker.Pool
	subRunner *workflow.Runner

	jobs    *job.Manager
	bulk    *bulk.Coordinator
	metrics *observability.MetricsExtension

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// metricFactory backs the process-local lifecycle counters
	// (optional; nil means a private collector).
	metricFactory gu.MetricFactory
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces vectorflow.DefaultConfig().
func WithConfig(cfg vectorflow.Config) Option {
	return func(eng *Engine) { eng.config = cfg }
}

// WithLogger sets the engine's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds step middleware after the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider. Both the metrics
// middleware and the observability extension use it instead of the
// global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// WithMetricFactory sets the go-utils MetricFactory behind the
// observability extension's counters, such as a Forge app's Metrics().
func WithMetricFactory(f gu.MetricFactory) Option {
	return func(eng *Engine) {
		eng.metricFactory = f
	}
}

// Build creates an Engine over s. Workflows are registered afterwards
// on Runner().Registry() and SubRunner().Registry(), before Start.
func Build(s store.Store, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, vectorflow.ErrNoStore
	}

	eng := &Engine{
		store:      s,
		config:     vectorflow.DefaultConfig(),
		extensions: ext.NewRegistry(slog.Default()),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = slog.Default()
	}
	if eng.config.Concurrency <= 0 {
		return nil, &vectorflow.ValidationError{Field: "concurrency", Message: "must be positive"}
	}
	logger := eng.logger

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	obsMeter := otel.Meter(instrumentationName + "/observability")
	if eng.meterProvider != nil {
		obsMeter = eng.meterProvider.Meter(instrumentationName + "/observability")
	}
	var obsExt *observability.MetricsExtension
	if eng.metricFactory != nil {
		obsExt = observability.NewMetricsExtensionWithFactory(eng.metricFactory, obsMeter)
	} else {
		obsExt = observability.NewMetricsExtensionWithMeter(obsMeter)
	}
	eng.extensions.Register(obsExt)
	eng.metrics = obsExt

	// Default stack: tracing → metrics → logging. The runner adds
	// timeout and recover innermost.
	allMws := make([]mw.Middleware, 0, 3+len(eng.mws))
	allMws = append(allMws, tracingMw, metricsMw, mw.Logging(logger))
	allMws = append(allMws, eng.mws...)

	emitter := &extRunEmitter{r: eng.extensions}

	eng.pool = worker.NewPool(logger, worker.WithPoolConcurrency(eng.config.Concurrency))
	eng.runner = workflow.NewRunner(workflow.NewRegistry(), s, emitter, logger,
		workflow.WithMiddleware(allMws...),
		workflow.WithPool(eng.pool),
	)

	eng.subPool = worker.NewPool(logger.With(slog.String("pool", "subjobs")),
		worker.WithPoolConcurrency(eng.config.Concurrency),
	)
	eng.subRunner = workflow.NewRunner(workflow.NewRegistry(), s, emitter, logger,
		workflow.WithMiddleware(allMws...),
		workflow.WithPool(eng.subPool),
	)

	eng.jobs = job.NewManager(s,
		job.WithNamespace(eng.config.Namespace),
		job.WithLogger(logger),
		job.WithObserver(&extJobObserver{r: eng.extensions}),
	)
	eng.bulk = bulk.NewCoordinator(eng.jobs,
		bulk.WithConcurrency(eng.config.Bulk.Concurrency),
		bulk.WithMaxItems(eng.config.Bulk.MaxItems),
		bulk.WithLogger(logger),
	)

	return eng, nil
}

// Start starts both worker pools and resumes any workflow runs left in
// the running state (crash recovery).
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.subPool.Start(ctx); err != nil {
		return fmt.Errorf("start sub-job pool: %w", err)
	}
	if err := eng.pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}

	// Resume sub-jobs first so resumed parents find them running.
	for _, r := range []*workflow.Runner{eng.subRunner, eng.runner} {
		n, err := r.ResumeAll(ctx)
		if err != nil {
			// Best-effort: a store hiccup must not block startup.
			eng.logger.Warn("failed to resume workflow runs",
				slog.String("error", err.Error()),
			)
			continue
		}
		if n > 0 {
			eng.logger.Info("resumed workflow runs", slog.Int("count", n))
		}
	}

	eng.logger.Info("vectorflow engine started",
		slog.Int("concurrency", eng.config.Concurrency),
		slog.String("namespace", eng.config.Namespace),
	)
	return nil
}

// Stop drains the parent pool, then the sub-job pool, and notifies
// extensions. Runs still active when ctx expires are cancelled and stay
// resumable.
func (eng *Engine) Stop(ctx context.Context) error {
	var errs []error
	if err := eng.pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop worker pool: %w", err))
	}
	if err := eng.subPool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop sub-job pool: %w", err))
	}
	eng.extensions.EmitShutdown(ctx)
	eng.logger.Info("vectorflow engine stopped")
	return errors.Join(errs...)
}

// Config returns the engine's configuration.
func (eng *Engine) Config() vectorflow.Config { return eng.config }

// Logger returns the engine's logger.
func (eng *Engine) Logger() *slog.Logger { return eng.logger }

// Store returns the backing store.
func (eng *Engine) Store() store.Store { return eng.store }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Runner returns the runner for job workflows.
func (eng *Engine) Runner() *workflow.Runner { return eng.runner }

// SubRunner returns the runner for sub-job workflows.
func (eng *Engine) SubRunner() *workflow.Runner { return eng.subRunner }

// Jobs returns the job lifecycle manager.
func (eng *Engine) Jobs() *job.Manager { return eng.jobs }

// Metrics returns the lifecycle metrics extension the engine always
// registers.
func (eng *Engine) Metrics() *observability.MetricsExtension { return eng.metrics }

// Bulk returns the bulk coordinator.
func (eng *Engine) Bulk() *bulk.Coordinator { return eng.bulk }

// RegisterWorkflow registers a typed workflow for job runs.
func RegisterWorkflow[T, R any](eng *Engine, def *workflow.Definition[T, R]) {
	workflow.RegisterDefinition(eng.runner.Registry(), def)
}

// RegisterSubWorkflow registers a typed workflow for sub-job runs.
func RegisterSubWorkflow[T, R any](eng *Engine, def *workflow.Definition[T, R]) {
	workflow.RegisterDefinition(eng.subRunner.Registry(), def)
}
