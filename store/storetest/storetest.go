// Package storetest is a conformance suite run by every store backend's
// tests.
package storetest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/kv"
	"github.com/xraph/vectorflow/store"
	"github.com/xraph/vectorflow/workflow"
)

// Factory returns an empty, migrated store. Cleanup is registered on t.
type Factory func(t *testing.T) store.Store

// Run executes the full suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("Lifecycle", func(t *testing.T) { testLifecycle(t, newStore(t)) })
	t.Run("JobCreateAndGet", func(t *testing.T) { testJobCreateAndGet(t, newStore(t)) })
	t.Run("JobUpdate", func(t *testing.T) { testJobUpdate(t, newStore(t)) })
	t.Run("JobDelete", func(t *testing.T) { testJobDelete(t, newStore(t)) })
	t.Run("JobListAndCount", func(t *testing.T) { testJobListAndCount(t, newStore(t)) })
	t.Run("RunCreateGetUpdate", func(t *testing.T) { testRunCreateGetUpdate(t, newStore(t)) })
	t.Run("RunList", func(t *testing.T) { testRunList(t, newStore(t)) })
	t.Run("Checkpoints", func(t *testing.T) { testCheckpoints(t, newStore(t)) })
	t.Run("KV", func(t *testing.T) { testKV(t, newStore(t)) })
}

func testLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

// NewRecord builds a pending record created at the given time.
func NewRecord(id string, kind job.Kind, status job.Status, createdAt time.Time) *job.Record {
	return &job.Record{
		ID:        id,
		Namespace: "default",
		Kind:      kind,
		Status:    status,
		CreatedAt: createdAt.UTC().Truncate(time.Millisecond),
		UpdatedAt: createdAt.UTC().Truncate(time.Millisecond),
	}
}

func testJobCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := NewRecord("vec_1", job.KindCreation, job.StatusPending, time.Now())
	r.Progress = &job.Progress{CurrentStep: "embed", TotalSteps: 2}
	r.Metadata = &job.Metadata{VectorID: "abc", Dimensions: 3}

	if err := s.CreateJob(ctx, r); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, r); !errors.Is(err, vectorflow.ErrJobAlreadyExists) {
		t.Fatalf("duplicate CreateJob = %v, want ErrJobAlreadyExists", err)
	}

	got, err := s.GetJob(ctx, "vec_1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Kind != job.KindCreation || got.Status != job.StatusPending || got.Namespace != "default" {
		t.Errorf("GetJob = %+v", got)
	}
	if !got.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, r.CreatedAt)
	}
	if got.Progress == nil || got.Progress.CurrentStep != "embed" || got.Progress.TotalSteps != 2 {
		t.Errorf("Progress = %+v", got.Progress)
	}
	if got.Metadata == nil || got.Metadata.VectorID != "abc" || got.Metadata.Dimensions != 3 {
		t.Errorf("Metadata = %+v", got.Metadata)
	}

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, vectorflow.ErrJobNotFound) {
		t.Errorf("GetJob(missing) = %v, want ErrJobNotFound", err)
	}
}

func testJobUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := NewRecord("vec_2", job.KindCreation, job.StatusPending, time.Now())
	if err := s.CreateJob(ctx, r); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	done := time.Now().UTC().Truncate(time.Millisecond)
	r.Status = job.StatusFailed
	r.Error = "boom"
	r.CompletedAt = &done
	if err := s.UpdateJob(ctx, r); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	got, err := s.GetJob(ctx, "vec_2")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusFailed || got.Error != "boom" {
		t.Errorf("GetJob = %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, done)
	}

	missing := NewRecord("missing", job.KindCreation, job.StatusPending, time.Now())
	if err := s.UpdateJob(ctx, missing); !errors.Is(err, vectorflow.ErrJobNotFound) {
		t.Errorf("UpdateJob(missing) = %v, want ErrJobNotFound", err)
	}
}

func testJobDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.CreateJob(ctx, NewRecord("del_1", job.KindDeletion, job.StatusPending, time.Now())); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.DeleteJob(ctx, "del_1"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, err := s.GetJob(ctx, "del_1"); !errors.Is(err, vectorflow.ErrJobNotFound) {
		t.Errorf("GetJob after delete = %v, want ErrJobNotFound", err)
	}
	if err := s.DeleteJob(ctx, "del_1"); err != nil {
		t.Errorf("second DeleteJob = %v, want nil", err)
	}
}

func testJobListAndCount(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	records := []*job.Record{
		NewRecord("a", job.KindCreation, job.StatusCompleted, base),
		NewRecord("b", job.KindBulk, job.StatusProcessing, base.Add(time.Minute)),
		NewRecord("c", job.KindCreation, job.StatusPending, base.Add(2*time.Minute)),
		NewRecord("d", job.KindCreation, job.StatusPending, base.Add(3*time.Minute)),
	}
	records[3].Namespace = "other"
	for _, r := range records {
		if err := s.CreateJob(ctx, r); err != nil {
			t.Fatalf("CreateJob(%s): %v", r.ID, err)
		}
	}

	tests := []struct {
		name string
		opts job.ListOpts
		want []string
	}{
		{"all newest first", job.ListOpts{}, []string{"d", "c", "b", "a"}},
		{"namespace", job.ListOpts{Namespace: "default"}, []string{"c", "b", "a"}},
		{"kind", job.ListOpts{Kind: job.KindCreation, Namespace: "default"}, []string{"c", "a"}},
		{"status", job.ListOpts{Status: job.StatusPending}, []string{"d", "c"}},
		{"created before", job.ListOpts{CreatedBefore: base.Add(90 * time.Second)}, []string{"b", "a"}},
		{"limit offset", job.ListOpts{Limit: 2, Offset: 1}, []string{"c", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListJobs: %v", err)
			}
			ids := make([]string, len(got))
			for i, r := range got {
				ids[i] = r.ID
			}
			if !slices.Equal(ids, tt.want) {
				t.Errorf("ListJobs = %v, want %v", ids, tt.want)
			}

			n, err := s.CountJobs(ctx, job.ListOpts{
				Namespace:     tt.opts.Namespace,
				Kind:          tt.opts.Kind,
				Status:        tt.opts.Status,
				CreatedBefore: tt.opts.CreatedBefore,
			})
			if err != nil {
				t.Fatalf("CountJobs: %v", err)
			}
			if tt.opts.Limit == 0 && n != int64(len(tt.want)) {
				t.Errorf("CountJobs = %d, want %d", n, len(tt.want))
			}
		})
	}
}

func newRun(id, name string, started time.Time) *workflow.Run {
	return &workflow.Run{
		ID:        id,
		Name:      name,
		State:     workflow.RunStateRunning,
		Input:     []byte(`{"text":"hi"}`),
		StartedAt: started.UTC().Truncate(time.Millisecond),
	}
}

func testRunCreateGetUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	run := newRun("run_1", "create-vector", time.Now())
	run.JobID = "vec_1"

	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.CreateRun(ctx, run); !errors.Is(err, vectorflow.ErrRunAlreadyExists) {
		t.Fatalf("duplicate CreateRun = %v, want ErrRunAlreadyExists", err)
	}

	got, err := s.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Name != "create-vector" || got.JobID != "vec_1" || string(got.Input) != `{"text":"hi"}` {
		t.Errorf("GetRun = %+v", got)
	}

	done := time.Now().UTC().Truncate(time.Millisecond)
	run.State = workflow.RunStateCompleted
	run.Output = []byte(`{"vectorId":"abc"}`)
	run.CompletedAt = &done
	run.Metadata = map[string]any{"steps": "2"}
	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	got, err = s.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.State != workflow.RunStateCompleted || string(got.Output) != `{"vectorId":"abc"}` {
		t.Errorf("GetRun after update = %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, done)
	}
	if got.Metadata["steps"] != "2" {
		t.Errorf("Metadata = %v", got.Metadata)
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, vectorflow.ErrRunNotFound) {
		t.Errorf("GetRun(missing) = %v, want ErrRunNotFound", err)
	}
	if err := s.UpdateRun(ctx, newRun("missing", "x", time.Now())); !errors.Is(err, vectorflow.ErrRunNotFound) {
		t.Errorf("UpdateRun(missing) = %v, want ErrRunNotFound", err)
	}
}

func testRunList(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	a := newRun("run_a", "create-vector", base)
	b := newRun("run_b", "delete-vectors", base.Add(time.Second))
	c := newRun("run_c", "create-vector", base.Add(2*time.Second))
	c.State = workflow.RunStateCompleted
	c.JobID = "vec_9"
	for _, r := range []*workflow.Run{c, a, b} {
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun(%s): %v", r.ID, err)
		}
	}

	tests := []struct {
		name string
		opts workflow.ListOpts
		want []string
	}{
		{"all oldest first", workflow.ListOpts{}, []string{"run_a", "run_b", "run_c"}},
		{"running", workflow.ListOpts{State: workflow.RunStateRunning}, []string{"run_a", "run_b"}},
		{"by name", workflow.ListOpts{Name: "create-vector"}, []string{"run_a", "run_c"}},
		{"by job", workflow.ListOpts{JobID: "vec_9"}, []string{"run_c"}},
		{"limit", workflow.ListOpts{Limit: 1, Offset: 1}, []string{"run_b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListRuns(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			ids := make([]string, len(got))
			for i, r := range got {
				ids[i] = r.ID
			}
			if !slices.Equal(ids, tt.want) {
				t.Errorf("ListRuns = %v, want %v", ids, tt.want)
			}
		})
	}
}

func testCheckpoints(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.CreateRun(ctx, newRun("run_cp", "create-vector", time.Now())); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	data, err := s.GetCheckpoint(ctx, "run_cp", "embed")
	if err != nil || data != nil {
		t.Fatalf("GetCheckpoint(missing) = %v, %v; want nil, nil", data, err)
	}

	steps := []string{"embed", "store", "embed:condition"}
	for i, step := range steps {
		if err := s.SaveCheckpoint(ctx, "run_cp", step, []byte{byte(i + 1)}); err != nil {
			t.Fatalf("SaveCheckpoint(%s): %v", step, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err := s.SaveCheckpoint(ctx, "run_cp", "store", []byte{9}); err != nil {
		t.Fatalf("SaveCheckpoint replace: %v", err)
	}

	data, err = s.GetCheckpoint(ctx, "run_cp", "store")
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if len(data) != 1 || data[0] != 9 {
		t.Errorf("GetCheckpoint(store) = %v, want [9]", data)
	}

	cps, err := s.ListCheckpoints(ctx, "run_cp")
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(cps) != 3 {
		t.Fatalf("ListCheckpoints len = %d, want 3", len(cps))
	}
	if cps[0].StepName != "embed" {
		t.Errorf("first checkpoint = %q, want embed", cps[0].StepName)
	}
	for _, cp := range cps {
		if cp.RunID != "run_cp" || cp.CreatedAt.IsZero() {
			t.Errorf("checkpoint %+v missing run id or time", cp)
		}
	}

	if err := s.DeleteRun(ctx, "run_cp"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.GetRun(ctx, "run_cp"); !errors.Is(err, vectorflow.ErrRunNotFound) {
		t.Errorf("GetRun after delete = %v", err)
	}
	cps, err = s.ListCheckpoints(ctx, "run_cp")
	if err != nil || len(cps) != 0 {
		t.Errorf("ListCheckpoints after delete = %d, %v", len(cps), err)
	}
}

func testKV(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.Get(ctx, "cursor"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}
	if err := s.Put(ctx, "cursor", []byte("page-1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "cursor", []byte("page-2")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, err := s.Get(ctx, "cursor")
	if err != nil || string(got) != "page-2" {
		t.Fatalf("Get = %q, %v; want page-2", got, err)
	}
	if err := s.Delete(ctx, "cursor"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "cursor"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := s.Get(ctx, "cursor"); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}
