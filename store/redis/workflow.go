package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/workflow"
)

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	key := s.keys.run(run.ID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("vectorflow/redis: create run exists: %w", err)
	}
	if exists > 0 {
		return vectorflow.ErrRunAlreadyExists
	}

	fields, err := runToMap(run)
	if err != nil {
		return fmt.Errorf("vectorflow/redis: create run: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.ZAdd(ctx, s.keys.runIndex(), goredis.Z{Score: score(run.StartedAt), Member: run.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vectorflow/redis: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*workflow.Run, error) {
	vals, err := s.client.HGetAll(ctx, s.keys.run(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("vectorflow/redis: get run: %w", err)
	}
	if len(vals) == 0 {
		return nil, vectorflow.ErrRunNotFound
	}
	return mapToRun(vals)
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	key := s.keys.run(run.ID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("vectorflow/redis: update run exists: %w", err)
	}
	if exists == 0 {
		return vectorflow.ErrRunNotFound
	}

	fields, err := runToMap(run)
	if err != nil {
		return fmt.Errorf("vectorflow/redis: update run: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vectorflow/redis: update run: %w", err)
	}
	return nil
}

// ListRuns returns workflow runs matching the given options, oldest first.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	ids, err := s.client.ZRange(ctx, s.keys.runIndex(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("vectorflow/redis: list runs index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, runID := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.keys.run(runID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("vectorflow/redis: list runs: %w", err)
	}

	var runs []*workflow.Run
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		r, err := mapToRun(vals)
		if err != nil {
			return nil, err
		}
		if opts.State != "" && r.State != opts.State {
			continue
		}
		if opts.Name != "" && r.Name != opts.Name {
			continue
		}
		if opts.JobID != "" && r.JobID != opts.JobID {
			continue
		}
		runs = append(runs, r)
	}
	return paginate(runs, opts.Offset, opts.Limit), nil
}

// DeleteRun removes a run and its checkpoints.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.keys.run(runID), s.keys.checkpoints(runID),
		s.keys.checkpointTimes(runID), s.keys.checkpointOrder(runID))
	pipe.ZRem(ctx, s.keys.runIndex(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vectorflow/redis: delete run: %w", err)
	}
	return nil
}

// SaveCheckpoint upserts checkpoint data for a workflow step. The creation
// time and list position of the first save are kept.
func (s *Store) SaveCheckpoint(ctx context.Context, runID, stepName string, data []byte) error {
	now := time.Now().UTC()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.keys.checkpoints(runID), stepName, data)
	pipe.HSetNX(ctx, s.keys.checkpointTimes(runID), stepName, formatTime(now))
	pipe.ZAddNX(ctx, s.keys.checkpointOrder(runID), goredis.Z{Score: score(now), Member: stepName})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vectorflow/redis: save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a specific workflow step.
func (s *Store) GetCheckpoint(ctx context.Context, runID, stepName string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.keys.checkpoints(runID), stepName).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vectorflow/redis: get checkpoint: %w", err)
	}
	return data, nil
}

// ListCheckpoints returns all checkpoints for a workflow run in the order
// they were first saved.
func (s *Store) ListCheckpoints(ctx context.Context, runID string) ([]*workflow.Checkpoint, error) {
	pipe := s.client.Pipeline()
	orderCmd := pipe.ZRange(ctx, s.keys.checkpointOrder(runID), 0, -1)
	dataCmd := pipe.HGetAll(ctx, s.keys.checkpoints(runID))
	timesCmd := pipe.HGetAll(ctx, s.keys.checkpointTimes(runID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("vectorflow/redis: list checkpoints: %w", err)
	}

	data, times := dataCmd.Val(), timesCmd.Val()
	var result []*workflow.Checkpoint
	for _, step := range orderCmd.Val() {
		d, ok := data[step]
		if !ok {
			continue
		}
		result = append(result, &workflow.Checkpoint{
			RunID:     runID,
			StepName:  step,
			Data:      []byte(d),
			CreatedAt: parseTime(times[step]),
		})
	}
	return result, nil
}

func runToMap(r *workflow.Run) (map[string]any, error) {
	m := map[string]any{
		"id":         r.ID,
		"name":       r.Name,
		"state":      string(r.State),
		"started_at": formatTime(r.StartedAt),
	}
	optional := map[string]string{
		"job_id":        r.JobID,
		"parent_run_id": r.ParentRunID,
		"input":         string(r.Input),
		"output":        string(r.Output),
		"error":         r.Error,
	}
	for k, v := range optional {
		if v != "" {
			m[k] = v
		}
	}
	if r.CompletedAt != nil {
		m["completed_at"] = formatTime(*r.CompletedAt)
	}
	if r.Metadata != nil {
		b, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		m["metadata"] = string(b)
	}
	return m, nil
}

func mapToRun(m map[string]string) (*workflow.Run, error) {
	r := &workflow.Run{
		ID:          m["id"],
		Name:        m["name"],
		JobID:       m["job_id"],
		ParentRunID: m["parent_run_id"],
		State:       workflow.RunState(m["state"]),
		Error:       m["error"],
		StartedAt:   parseTime(m["started_at"]),
	}
	if v, ok := m["input"]; ok {
		r.Input = []byte(v)
	}
	if v, ok := m["output"]; ok {
		r.Output = []byte(v)
	}
	if v, ok := m["completed_at"]; ok {
		t := parseTime(v)
		r.CompletedAt = &t
	}
	if v, ok := m["metadata"]; ok {
		if err := json.Unmarshal([]byte(v), &r.Metadata); err != nil {
			return nil, fmt.Errorf("vectorflow/redis: run %s metadata: %w", r.ID, err)
		}
	}
	return r, nil
}
