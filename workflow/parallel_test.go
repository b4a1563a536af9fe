package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/workflow"
)

func TestParallel_PreservesTaskOrder(t *testing.T) {
	h := newHarness()
	wf := h.newWorkflow(context.Background(), "run_parallel")

	delays := []time.Duration{30 * time.Millisecond, 0, 10 * time.Millisecond}
	tasks := make([]workflow.Task[int], len(delays))
	for i, d := range delays {
		tasks[i] = workflow.Task[int]{
			Name: fmt.Sprintf("chunk-%d", i),
			Fn: func(context.Context) (int, error) {
				time.Sleep(d)
				return i * 10, nil
			},
		}
	}

	results, err := workflow.Parallel(wf, tasks...)
	if err != nil {
		t.Fatalf("Parallel: %v", err)
	}
	for i, res := range results {
		if !res.Success || res.Data != i*10 {
			t.Errorf("results[%d] = %+v, want %d", i, res, i*10)
		}
	}
}

func TestParallel_CriticalFailureDoesNotCancelSiblings(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	wf := h.newWorkflow(ctx, "run_siblings")

	var finished atomic.Int32
	results, err := workflow.Parallel(wf,
		workflow.Task[string]{Name: "a", Fn: func(context.Context) (string, error) {
			return "", errBoom
		}},
		workflow.Task[string]{Name: "b", Fn: func(ctx context.Context) (string, error) {
			time.Sleep(20 * time.Millisecond)
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			finished.Add(1)
			return "b", nil
		}},
		workflow.Task[string]{Name: "c", Fn: func(context.Context) (string, error) {
			return "", errBoom
		}, Options: []workflow.StepOption{workflow.NonCritical()}},
	)

	var critical *vectorflow.CriticalStepError
	if !errors.As(err, &critical) || critical.Step != "a" {
		t.Fatalf("Parallel = %v, want critical failure of a", err)
	}
	if finished.Load() != 1 || !results[1].Success || results[1].Data != "b" {
		t.Errorf("sibling b = %+v, want completed", results[1])
	}
	if results[2].Success || results[2].Error != "boom" {
		t.Errorf("non-critical c = %+v", results[2])
	}
	if data, _ := h.store.GetCheckpoint(ctx, "run_siblings", "b"); data == nil {
		t.Error("sibling b not checkpointed")
	}
}

func TestParallel_RejectsDuplicateNames(t *testing.T) {
	h := newHarness()
	wf := h.newWorkflow(context.Background(), "run_dup")

	fn := func(context.Context) (int, error) { return 1, nil }
	_, err := workflow.Parallel(wf,
		workflow.Task[int]{Name: "x", Fn: fn},
		workflow.Task[int]{Name: "x", Fn: fn},
	)
	if err == nil {
		t.Fatal("Parallel accepted duplicate step names")
	}
}

func TestWhen(t *testing.T) {
	tests := []struct {
		name    string
		cond    bool
		wantNil bool
	}{
		{"false skips", false, true},
		{"true runs", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			ctx := context.Background()
			wf := h.newWorkflow(ctx, "run_when")

			var ran, checked atomic.Int32
			pred := func(context.Context) (bool, error) {
				checked.Add(1)
				return tt.cond, nil
			}
			fn := func(context.Context) (int, error) {
				ran.Add(1)
				return 7, nil
			}

			for range 2 {
				res, err := workflow.When(wf, "replace-existing", pred, fn)
				if err != nil {
					t.Fatalf("When: %v", err)
				}
				if tt.wantNil && res != nil {
					t.Fatalf("When = %+v, want nil", res)
				}
				if !tt.wantNil && (res == nil || res.Data != 7) {
					t.Fatalf("When = %+v, want 7", res)
				}
			}
			if checked.Load() != 1 {
				t.Errorf("predicate ran %d times, want 1", checked.Load())
			}
			want := int32(0)
			if tt.cond {
				want = 1
			}
			if ran.Load() != want {
				t.Errorf("fn ran %d times, want %d", ran.Load(), want)
			}
			if data, _ := h.store.GetCheckpoint(ctx, "run_when", "replace-existing:condition"); data == nil {
				t.Error("condition not checkpointed")
			}
		})
	}
}
