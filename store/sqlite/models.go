package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/workflow"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	grove.BaseModel `grove:"table:vectorflow_jobs"`

	ID          string     `grove:"id,pk"`
	Namespace   string     `grove:"namespace,notnull,default:'default'"`
	Kind        string     `grove:"kind,notnull"`
	Status      string     `grove:"status,notnull,default:'pending'"`
	Error       string     `grove:"error,notnull,default:''"`
	Progress    *string    `grove:"progress"`
	Metadata    *string    `grove:"metadata"`
	CreatedAt   time.Time  `grove:"created_at,notnull"`
	UpdatedAt   time.Time  `grove:"updated_at,notnull"`
	CompletedAt *time.Time `grove:"completed_at"`
}

func toJobModel(r *job.Record) (*jobModel, error) {
	progress, err := toJSON(r.Progress, r.Progress == nil)
	if err != nil {
		return nil, fmt.Errorf("marshal progress: %w", err)
	}
	metadata, err := toJSON(r.Metadata, r.Metadata == nil)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return &jobModel{
		ID:          r.ID,
		Namespace:   r.Namespace,
		Kind:        string(r.Kind),
		Status:      string(r.Status),
		Error:       r.Error,
		Progress:    progress,
		Metadata:    metadata,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		CompletedAt: utcPtr(r.CompletedAt),
	}, nil
}

func fromJobModel(m *jobModel) (*job.Record, error) {
	r := &job.Record{
		ID:          m.ID,
		Namespace:   m.Namespace,
		Kind:        job.Kind(m.Kind),
		Status:      job.Status(m.Status),
		Error:       m.Error,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		CompletedAt: m.CompletedAt,
	}
	if m.Progress != nil {
		r.Progress = new(job.Progress)
		if err := json.Unmarshal([]byte(*m.Progress), r.Progress); err != nil {
			return nil, fmt.Errorf("unmarshal progress: %w", err)
		}
	}
	if m.Metadata != nil {
		r.Metadata = new(job.Metadata)
		if err := json.Unmarshal([]byte(*m.Metadata), r.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return r, nil
}

// ── Workflow run model ────────────────────────────────────────────

type runModel struct {
	grove.BaseModel `grove:"table:vectorflow_runs"`

	ID          string     `grove:"id,pk"`
	Name        string     `grove:"name,notnull"`
	JobID       string     `grove:"job_id,notnull,default:''"`
	ParentRunID string     `grove:"parent_run_id,notnull,default:''"`
	State       string     `grove:"state,notnull,default:'running'"`
	Input       []byte     `grove:"input"`
	Output      []byte     `grove:"output"`
	Error       string     `grove:"error,notnull,default:''"`
	Metadata    *string    `grove:"metadata"`
	StartedAt   time.Time  `grove:"started_at,notnull"`
	CompletedAt *time.Time `grove:"completed_at"`
}

func toRunModel(r *workflow.Run) (*runModel, error) {
	metadata, err := toJSON(r.Metadata, r.Metadata == nil)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return &runModel{
		ID:          r.ID,
		Name:        r.Name,
		JobID:       r.JobID,
		ParentRunID: r.ParentRunID,
		State:       string(r.State),
		Input:       r.Input,
		Output:      r.Output,
		Error:       r.Error,
		Metadata:    metadata,
		StartedAt:   r.StartedAt.UTC(),
		CompletedAt: utcPtr(r.CompletedAt),
	}, nil
}

func fromRunModel(m *runModel) (*workflow.Run, error) {
	r := &workflow.Run{
		ID:          m.ID,
		Name:        m.Name,
		JobID:       m.JobID,
		ParentRunID: m.ParentRunID,
		State:       workflow.RunState(m.State),
		Input:       m.Input,
		Output:      m.Output,
		Error:       m.Error,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
	if m.Metadata != nil {
		if err := json.Unmarshal([]byte(*m.Metadata), &r.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return r, nil
}

// ── Checkpoint model ──────────────────────────────────────────────

type checkpointModel struct {
	grove.BaseModel `grove:"table:vectorflow_checkpoints"`

	RunID     string    `grove:"run_id,pk"`
	StepName  string    `grove:"step_name,pk"`
	Data      []byte    `grove:"data,notnull"`
	CreatedAt time.Time `grove:"created_at,notnull"`
}

func fromCheckpointModel(m *checkpointModel) *workflow.Checkpoint {
	return &workflow.Checkpoint{
		RunID:     m.RunID,
		StepName:  m.StepName,
		Data:      m.Data,
		CreatedAt: m.CreatedAt,
	}
}

// ── KV model ──────────────────────────────────────────────────────

type kvModel struct {
	grove.BaseModel `grove:"table:vectorflow_kv"`

	Key   string `grove:"key,pk"`
	Value []byte `grove:"value,notnull"`
}

// ── helpers ───────────────────────────────────────────────────────

// toJSON marshals v for a nullable JSON text column.
func toJSON(v any, isNil bool) (*string, error) {
	if isNil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
