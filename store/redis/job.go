package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/job"
)

// CreateJob stores the record as a Hash and indexes it by creation time.
func (s *Store) CreateJob(ctx context.Context, r *job.Record) error {
	key := s.keys.job(r.ID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("vectorflow/redis: create job exists: %w", err)
	}
	if exists > 0 {
		return vectorflow.ErrJobAlreadyExists
	}

	fields, err := jobToMap(r)
	if err != nil {
		return fmt.Errorf("vectorflow/redis: create job: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.ZAdd(ctx, s.keys.jobIndex(), goredis.Z{Score: score(r.CreatedAt), Member: r.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vectorflow/redis: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job record by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Record, error) {
	vals, err := s.client.HGetAll(ctx, s.keys.job(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("vectorflow/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, vectorflow.ErrJobNotFound
	}
	return mapToJob(vals)
}

// UpdateJob replaces an existing job record.
func (s *Store) UpdateJob(ctx context.Context, r *job.Record) error {
	key := s.keys.job(r.ID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("vectorflow/redis: update job exists: %w", err)
	}
	if exists == 0 {
		return vectorflow.ErrJobNotFound
	}

	fields, err := jobToMap(r)
	if err != nil {
		return fmt.Errorf("vectorflow/redis: update job: %w", err)
	}
	// Replace the whole Hash so cleared optional fields disappear.
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vectorflow/redis: update job: %w", err)
	}
	return nil
}

// DeleteJob removes a job record by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.keys.job(jobID))
	pipe.ZRem(ctx, s.keys.jobIndex(), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vectorflow/redis: delete job: %w", err)
	}
	return nil
}

// ListJobs returns job records matching opts, newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Record, error) {
	records, err := s.scanJobs(ctx, opts)
	if err != nil {
		return nil, err
	}
	return paginate(records, opts.Offset, opts.Limit), nil
}

// CountJobs returns the number of job records matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.ListOpts) (int64, error) {
	records, err := s.scanJobs(ctx, opts)
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// scanJobs loads every indexed record newest first and applies the filters.
func (s *Store) scanJobs(ctx context.Context, opts job.ListOpts) ([]*job.Record, error) {
	ids, err := s.client.ZRevRange(ctx, s.keys.jobIndex(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("vectorflow/redis: list jobs index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, jobID := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.keys.job(jobID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("vectorflow/redis: list jobs: %w", err)
	}

	var result []*job.Record
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		r, err := mapToJob(vals)
		if err != nil {
			return nil, err
		}
		if !matchJob(r, opts) {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

func matchJob(r *job.Record, opts job.ListOpts) bool {
	switch {
	case opts.Namespace != "" && r.Namespace != opts.Namespace:
		return false
	case opts.Kind != "" && r.Kind != opts.Kind:
		return false
	case opts.Status != "" && r.Status != opts.Status:
		return false
	case !opts.CreatedBefore.IsZero() && !r.CreatedAt.Before(opts.CreatedBefore):
		return false
	}
	return true
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func jobToMap(r *job.Record) (map[string]any, error) {
	m := map[string]any{
		"id":         r.ID,
		"namespace":  r.Namespace,
		"kind":       string(r.Kind),
		"status":     string(r.Status),
		"created_at": formatTime(r.CreatedAt),
		"updated_at": formatTime(r.UpdatedAt),
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.CompletedAt != nil {
		m["completed_at"] = formatTime(*r.CompletedAt)
	}
	if r.Progress != nil {
		b, err := json.Marshal(r.Progress)
		if err != nil {
			return nil, fmt.Errorf("marshal progress: %w", err)
		}
		m["progress"] = string(b)
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

func mapToJob(m map[string]string) (*job.Record, error) {
	r := &job.Record{
		ID:        m["id"],
		Namespace: m["namespace"],
		Kind:      job.Kind(m["kind"]),
		Status:    job.Status(m["status"]),
		Error:     m["error"],
		CreatedAt: parseTime(m["created_at"]),
		UpdatedAt: parseTime(m["updated_at"]),
	}
	if v, ok := m["completed_at"]; ok {
		t := parseTime(v)
		r.CompletedAt = &t
	}
	if v, ok := m["progress"]; ok {
		r.Progress = new(job.Progress)
		if err := json.Unmarshal([]byte(v), r.Progress); err != nil {
			return nil, fmt.Errorf("vectorflow/redis: job %s progress: %w", r.ID, err)
		}
	}
	if v, ok := m["metadata"]; ok {
		r.Metadata = new(job.Metadata)
		if err := json.Unmarshal([]byte(v), r.Metadata); err != nil {
			return nil, fmt.Errorf("vectorflow/redis: job %s metadata: %w", r.ID, err)
		}
	}
	return r, nil
}
