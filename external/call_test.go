package external_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/vectorflow/backoff"
	"github.com/xraph/vectorflow/external"
	"github.com/xraph/vectorflow/store/memory"
	"github.com/xraph/vectorflow/workflow"
)

// fakeEngine serves scripted snapshots. Each Status call returns the
// next snapshot; the last one repeats.
type fakeEngine struct {
	mu        sync.Mutex
	script    []external.Snapshot
	createErr []error
	creates   []string
	polls     int
	params    json.RawMessage
}

func (e *fakeEngine) Create(_ context.Context, id string, params json.RawMessage) (external.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.creates = append(e.creates, id)
	if len(e.createErr) > 0 {
		err := e.createErr[0]
		e.createErr = e.createErr[1:]
		if err != nil {
			return nil, err
		}
	}
	e.params = params
	return &fakeHandle{id: id, engine: e}, nil
}

func (e *fakeEngine) Get(_ context.Context, id string) (external.Handle, error) {
	return &fakeHandle{id: id, engine: e}, nil
}

type fakeHandle struct {
	id     string
	engine *fakeEngine
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Status(context.Context) (external.Snapshot, error) {
	e := h.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	i := min(e.polls, len(e.script)-1)
	e.polls++
	return e.script[i], nil
}

// stepClock advances by step every time it is read.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type sleeps struct {
	mu sync.Mutex
	d  []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.d = append(s.d, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newWorkflow(t *testing.T, runID string) (*workflow.Workflow, *memory.Store, *sleeps) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	run := &workflow.Run{ID: runID, Name: "parent", State: workflow.RunStateRunning, StartedAt: time.Now().UTC()}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	s := &sleeps{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return workflow.NewWorkflowContext(ctx, run, store, nil, logger, nil, s.sleep), store, s
}

type embedParams struct {
	Text string `json:"text"`
}

type embedResult struct {
	Dimensions int `json:"dimensions"`
}

func fast() backoff.RetryPolicy {
	return backoff.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestCall_CompletesAfterPolling(t *testing.T) {
	wf, store, s := newWorkflow(t, "run_1")
	eng := &fakeEngine{script: []external.Snapshot{
		{Status: external.StatusQueued},
		{Status: external.StatusRunning},
		{Status: external.StatusComplete, Output: json.RawMessage(`{"dimensions":3}`)},
	}}

	out, err := external.Call[embedParams, embedResult](wf, eng, embedParams{Text: "Hello world"}, "Embed",
		external.WithPollInterval(time.Second))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out == nil || out.Dimensions != 3 {
		t.Fatalf("output = %+v", out)
	}
	if len(eng.creates) != 1 || eng.creates[0] != "run_1-embed" {
		t.Errorf("creates = %v, want [run_1-embed]", eng.creates)
	}
	if string(eng.params) != `{"text":"Hello world"}` {
		t.Errorf("params = %s", eng.params)
	}
	if len(s.d) != 2 || s.d[0] != time.Second {
		t.Errorf("sleeps = %v, want two of 1s", s.d)
	}

	cps, err := store.ListCheckpoints(context.Background(), "run_1")
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	var names []string
	for _, cp := range cps {
		names = append(names, cp.StepName)
	}
	want := []string{
		"Embed:create",
		"Embed:poll:1", "sleep:Embed:wait:1",
		"Embed:poll:2", "sleep:Embed:wait:2",
		"Embed:poll:3",
	}
	if len(names) != len(want) {
		t.Fatalf("checkpoints = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("checkpoint %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestCall_NullOutputIsNil(t *testing.T) {
	for _, output := range []string{"", "null"} {
		wf, _, _ := newWorkflow(t, "run_null")
		eng := &fakeEngine{script: []external.Snapshot{
			{Status: external.StatusComplete, Output: json.RawMessage(output)},
		}}
		out, err := external.Call[embedParams, embedResult](wf, eng, embedParams{}, "Vector")
		if err != nil || out != nil {
			t.Errorf("output %q: Call = %+v, %v; want nil, nil", output, out, err)
		}
	}
}

func TestCall_Failure(t *testing.T) {
	tests := []struct {
		name    string
		snap    external.Snapshot
		wantMsg string
	}{
		{"errored without reason", external.Snapshot{Status: external.StatusErrored}, "Vector workflow failed: Unknown error"},
		{"errored with reason", external.Snapshot{Status: external.StatusErrored, Error: "index unavailable"}, "Vector workflow failed: index unavailable"},
		{"failed", external.Snapshot{Status: external.StatusFailed, Error: "index down"}, "Vector workflow failed: index down"},
		{"terminated", external.Snapshot{Status: external.StatusTerminated, Error: "cancelled"}, "Vector workflow failed: cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf, _, _ := newWorkflow(t, "run_fail")
			eng := &fakeEngine{script: []external.Snapshot{{Status: external.StatusRunning}, tt.snap}}

			_, err := external.Call[embedParams, embedResult](wf, eng, embedParams{}, "Vector")
			var failure *external.FailureError
			if !errors.As(err, &failure) {
				t.Fatalf("Call = %v, want *FailureError", err)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
			if !errors.Is(err, external.ErrFailed) || errors.Is(err, external.ErrTimeout) {
				t.Errorf("error identity wrong: %v", err)
			}
		})
	}
}

func TestCall_TimeoutReplaysDeterministically(t *testing.T) {
	wf, _, _ := newWorkflow(t, "run_timeout")
	eng := &fakeEngine{script: []external.Snapshot{{Status: external.StatusRunning}}}
	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step: time.Minute}

	_, err := external.Call[embedParams, embedResult](wf, eng, embedParams{}, "Embed",
		external.WithTimeout(2*time.Minute), external.WithClock(clock.Now))
	var timeout *external.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("Call = %v, want *TimeoutError", err)
	}
	if err.Error() != "Embed workflow did not complete within timeout (2m0s)" {
		t.Errorf("message = %q", err.Error())
	}
	if !errors.Is(err, external.ErrTimeout) || errors.Is(err, external.ErrFailed) {
		t.Errorf("error identity wrong: %v", err)
	}
	// Created at t0; polls at t0+1m, t0+2m (not past), t0+3m (past).
	if eng.polls != 3 {
		t.Errorf("polls = %d, want 3", eng.polls)
	}

	// Replaying with a frozen clock reaches the same verdict from
	// checkpoints alone.
	frozen := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err = external.Call[embedParams, embedResult](wf, eng, embedParams{}, "Embed",
		external.WithTimeout(2*time.Minute), external.WithClock(frozen))
	if !errors.Is(err, external.ErrTimeout) {
		t.Fatalf("replayed Call = %v, want ErrTimeout", err)
	}
	if eng.polls != 3 || len(eng.creates) != 1 {
		t.Errorf("replay touched the engine: polls=%d creates=%d", eng.polls, len(eng.creates))
	}
}

func TestCall_CreateIsRetried(t *testing.T) {
	wf, _, s := newWorkflow(t, "run_create")
	eng := &fakeEngine{
		createErr: []error{errors.New("unavailable"), nil},
		script:    []external.Snapshot{{Status: external.StatusComplete, Output: json.RawMessage(`{"dimensions":1}`)}},
	}

	out, err := external.Call[embedParams, embedResult](wf, eng, embedParams{}, "Embed",
		external.WithCreateRetry(fast()), external.WithInstanceID("sub_fixed"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Dimensions != 1 {
		t.Errorf("output = %+v", out)
	}
	if len(eng.creates) != 2 || eng.creates[1] != "sub_fixed" {
		t.Errorf("creates = %v", eng.creates)
	}
	if len(s.d) != 1 || s.d[0] != time.Millisecond {
		t.Errorf("sleeps = %v, want one retry wait", s.d)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status external.Status
		want   bool
	}{
		{external.StatusQueued, false},
		{external.StatusRunning, false},
		{external.StatusWaiting, false},
		{external.StatusComplete, true},
		{external.StatusErrored, true},
		{external.StatusFailed, true},
		{external.StatusTerminated, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
