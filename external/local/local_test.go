package local_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/vectorflow/external"
	"github.com/xraph/vectorflow/external/local"
	"github.com/xraph/vectorflow/store/memory"
	"github.com/xraph/vectorflow/workflow"
)

type embedIn struct {
	Text string `json:"text"`
}

type embedOut struct {
	Embedding []float32 `json:"embedding"`
}

func setup(t *testing.T, calls *atomic.Int32) (*workflow.Runner, *memory.Store) {
	t.Helper()
	store := memory.New()
	registry := workflow.NewRegistry()
	workflow.RegisterDefinition(registry, workflow.NewWorkflow("embed-text",
		func(wf *workflow.Workflow, in embedIn) (embedOut, error) {
			calls.Add(1)
			if in.Text == "" {
				return embedOut{}, errors.New("no text")
			}
			return embedOut{Embedding: []float32{0.1, 0.2, 0.3}}, nil
		}))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return workflow.NewRunner(registry, store, nil, logger), store
}

func waitTerminal(t *testing.T, h external.Handle) external.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := h.Status(context.Background())
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if snap.Status.IsTerminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sub-job %s did not finish", h.ID())
	return external.Snapshot{}
}

func TestEngine_CreateRunsWorkflow(t *testing.T) {
	var calls atomic.Int32
	runner, _ := setup(t, &calls)
	eng := local.New(runner, "embed-text")
	ctx := context.Background()

	h, err := eng.Create(ctx, "sub_1", []byte(`{"text":"Hello world"}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if h.ID() != "sub_1" {
		t.Errorf("ID = %q", h.ID())
	}
	snap := waitTerminal(t, h)
	if snap.Status != external.StatusComplete || string(snap.Output) != `{"embedding":[0.1,0.2,0.3]}` {
		t.Errorf("snapshot = %+v (%s)", snap, snap.Output)
	}

	again, err := eng.Create(ctx, "sub_1", []byte(`{"text":"other"}`))
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if again.ID() != "sub_1" || calls.Load() != 1 {
		t.Errorf("second Create started new work: id=%q calls=%d", again.ID(), calls.Load())
	}
}

func TestEngine_FailedRunIsErrored(t *testing.T) {
	var calls atomic.Int32
	runner, _ := setup(t, &calls)
	eng := local.New(runner, "embed-text", local.WithCreateRate(100, 1))

	h, err := eng.Create(context.Background(), "sub_err", []byte(`{}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	snap := waitTerminal(t, h)
	if snap.Status != external.StatusErrored || snap.Error != "no text" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestEngine_GetUnknown(t *testing.T) {
	var calls atomic.Int32
	runner, _ := setup(t, &calls)
	eng := local.New(runner, "embed-text")

	if _, err := eng.Get(context.Background(), "missing"); err == nil {
		t.Fatal("Get(missing) = nil error")
	}
}

func TestEngine_ChainedFromParentRun(t *testing.T) {
	var calls atomic.Int32
	runner, store := setup(t, &calls)
	eng := local.New(runner, "embed-text")

	workflow.RegisterDefinition(runner.Registry(), workflow.NewWorkflow("create-vector",
		func(wf *workflow.Workflow, in embedIn) (int, error) {
			out, err := external.Call[embedIn, embedOut](wf, eng, in, "Embed",
				external.WithPollInterval(5*time.Millisecond))
			if err != nil {
				return 0, err
			}
			return len(out.Embedding), nil
		}))

	run, err := workflow.Start(context.Background(), runner, "create-vector", embedIn{Text: "hi"}, workflow.WithRunID("run_parent"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.State != workflow.RunStateCompleted {
		t.Fatalf("parent = %q %q", run.State, run.Error)
	}
	if n, _ := workflow.DecodeOutput[int](run); n != 3 {
		t.Errorf("dimensions = %d, want 3", n)
	}
	sub, err := store.GetRun(context.Background(), "run_parent-embed")
	if err != nil || sub.State != workflow.RunStateCompleted {
		t.Errorf("sub-job run = %+v, %v", sub, err)
	}
}
