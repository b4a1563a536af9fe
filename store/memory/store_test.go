package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/store"
	"github.com/xraph/vectorflow/store/memory"
	"github.com/xraph/vectorflow/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestJobRecordsAreCopied(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	r := storetest.NewRecord("vec_1", job.KindCreation, job.StatusPending, time.Now())
	r.Metadata = &job.Metadata{VectorIDs: []string{"a"}}
	if err := s.CreateJob(ctx, r); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Mutating the caller's record must not leak into the store.
	r.Status = job.StatusFailed
	r.Metadata.VectorIDs[0] = "mutated"

	got, err := s.GetJob(ctx, "vec_1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusPending || got.Metadata.VectorIDs[0] != "a" {
		t.Errorf("stored record changed through caller pointer: %+v", got)
	}

	got.Metadata.VectorIDs[0] = "mutated"
	again, _ := s.GetJob(ctx, "vec_1")
	if again.Metadata.VectorIDs[0] != "a" {
		t.Errorf("stored record changed through returned pointer")
	}
}
