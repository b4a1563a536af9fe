package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	gu "github.com/xraph/go-utils/metrics"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/engine"
	"github.com/xraph/vectorflow/external"
	"github.com/xraph/vectorflow/external/local"
	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/store/memory"
	"github.com/xraph/vectorflow/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder records the hooks it receives. Hooks fire from pool goroutines.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	return nil
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (r *recorder) OnJobCreated(context.Context, *job.Record) error { return r.add("created") }

func (r *recorder) OnJobDispatched(context.Context, *job.Record) error { return r.add("dispatched") }

func (r *recorder) OnJobCompleted(context.Context, *job.Record, time.Duration) error {
	return r.add("completed")
}

func (r *recorder) OnJobFailed(context.Context, *job.Record) error { return r.add("failed") }

func (r *recorder) OnWorkflowStarted(context.Context, *workflow.Run) error {
	return r.add("workflow-started")
}

func (r *recorder) OnWorkflowCompleted(context.Context, *workflow.Run, time.Duration) error {
	return r.add("workflow-completed")
}

func (r *recorder) OnShutdown(context.Context) error { return r.add("shutdown") }

type textIn struct {
	Text string `json:"text"`
}

type embedOut struct {
	Embedding []float32 `json:"embedding"`
}

func waitRun(t *testing.T, runner *workflow.Runner, runID string) *workflow.Run {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		run, err := runner.Get(context.Background(), runID)
		if err == nil && run.IsTerminal() {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", runID)
	return nil
}

func TestBuild_RequiresStore(t *testing.T) {
	if _, err := engine.Build(nil); !errors.Is(err, vectorflow.ErrNoStore) {
		t.Fatalf("Build(nil) = %v, want ErrNoStore", err)
	}
}

func TestBuild_RejectsZeroConcurrency(t *testing.T) {
	cfg := vectorflow.DefaultConfig()
	cfg.Concurrency = 0
	_, err := engine.Build(memory.New(), engine.WithConfig(cfg), engine.WithLogger(testLogger()))
	if !errors.Is(err, vectorflow.ErrValidation) {
		t.Fatalf("Build = %v, want validation error", err)
	}
}

func TestEngine_ChainedSubJobEndToEnd(t *testing.T) {
	rec := &recorder{}
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	cfg := vectorflow.DefaultConfig()
	cfg.Concurrency = 1
	cfg.Namespace = "test"
	eng, err := engine.Build(memory.New(),
		engine.WithConfig(cfg),
		engine.WithLogger(testLogger()),
		engine.WithExtension(rec),
		engine.WithMeterProvider(mp),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	engine.RegisterSubWorkflow(eng, workflow.NewWorkflow("embed-text",
		func(_ *workflow.Workflow, in textIn) (embedOut, error) {
			return embedOut{Embedding: []float32{0.1, 0.2, 0.3}}, nil
		}))
	embedder := local.New(eng.SubRunner(), "embed-text")
	engine.RegisterWorkflow(eng, workflow.NewWorkflow("create-vector",
		func(wf *workflow.Workflow, in textIn) (int, error) {
			out, err := external.Call[textIn, embedOut](wf, embedder, in, "Embed",
				external.WithPollInterval(5*time.Millisecond))
			if err != nil {
				return 0, err
			}
			return len(out.Embedding), nil
		}))

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	jobs := eng.Jobs()
	jobID, err := jobs.Create(ctx, job.KindCreation, job.CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	run, err := workflow.Spawn(ctx, eng.Runner(), "create-vector", textIn{Text: "Hello world"}, workflow.WithJobID(jobID))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := jobs.Update(ctx, jobID, job.StatusProcessing, nil); err != nil {
		t.Fatalf("Update processing: %v", err)
	}

	// With a single parent worker the sub-job can only finish on its own pool.
	done := waitRun(t, eng.Runner(), run.ID)
	if done.State != workflow.RunStateCompleted {
		t.Fatalf("run = %q %q", done.State, done.Error)
	}
	if err := jobs.Update(ctx, jobID, job.StatusCompleted, &job.Patch{
		Metadata: &job.Metadata{Dimensions: 3},
	}); err != nil {
		t.Fatalf("Update completed: %v", err)
	}

	got, err := jobs.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Namespace != "test" || got.Status != job.StatusCompleted {
		t.Errorf("record = %+v", got)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := eng.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	for name, want := range map[string]int{
		"created":            1,
		"dispatched":         1,
		"completed":          1,
		"failed":             0,
		"workflow-started":   2,
		"workflow-completed": 2,
		"shutdown":           1,
	} {
		if got := rec.count(name); got != want {
			t.Errorf("hook %s fired %d times, want %d", name, got, want)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var names []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names = append(names, m.Name)
		}
	}
	for _, want := range []string{"vectorflow.job.created", "vectorflow.step.executions", "vectorflow.workflow.completed"} {
		if !slices.Contains(names, want) {
			t.Errorf("metric %s not recorded (have %v)", want, names)
		}
	}
}

func TestEngine_MetricFactoryBacksStats(t *testing.T) {
	factory := gu.NewMetricsCollector("engine-test")
	eng, err := engine.Build(memory.New(),
		engine.WithLogger(testLogger()),
		engine.WithMetricFactory(factory),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, err := eng.Jobs().Create(context.Background(), job.KindDeletion, job.CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := eng.Metrics().Stats().JobsCreated; got != 1 {
		t.Errorf("JobsCreated = %v, want 1", got)
	}
}
