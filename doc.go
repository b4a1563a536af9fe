// Package vectorflow is a durable job-orchestration engine for embedding
// and vector-index workloads.
//
// A request to create, delete, sync, or bulk-process vectors becomes a
// job record and a durable workflow run. Workflow handlers are composed
// of steps that retry with capped exponential backoff, checkpoint their
// results by (run, step name), fan out in parallel, run conditionally,
// and chain independently durable sub-jobs on an external execution
// engine with bounded polling.
//
// # Quick Start
//
//	cfg, err := vectorflow.LoadConfig("vectorflow.yaml")
//	eng, err := engine.New(engine.WithStore(memory.New()))
//	svc, err := service.New(eng, embedder, index)
//	resp, err := svc.CreateJob(ctx, service.CreateRequest{
//	    Kind:   job.KindCreation,
//	    Create: &service.CreatePayload{Text: "Hello world"},
//	})
//
// # Architecture
//
// Each subsystem (job, workflow, kv) defines its own store interface and
// a single backend (memory, sqlite, postgres, redis) implements all of
// them. Identifiers are prefixed, K-sortable, UUIDv7-based strings.
package vectorflow
