package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// TimelineEntry represents a single step in a run's execution history.
type TimelineEntry struct {
	StepName  string    `json:"step_name"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GetTimeline returns the checkpointed steps of a run ordered by
// creation time, with step name as tiebreaker.
func (r *Runner) GetTimeline(ctx context.Context, runID string) ([]TimelineEntry, error) {
	checkpoints, err := r.store.ListCheckpoints(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for run %s: %w", runID, err)
	}

	sort.SliceStable(checkpoints, func(i, j int) bool {
		if checkpoints[i].CreatedAt.Equal(checkpoints[j].CreatedAt) {
			return checkpoints[i].StepName < checkpoints[j].StepName
		}
		return checkpoints[i].CreatedAt.Before(checkpoints[j].CreatedAt)
	})

	entries := make([]TimelineEntry, 0, len(checkpoints))
	for _, cp := range checkpoints {
		entry := TimelineEntry{StepName: cp.StepName, CreatedAt: cp.CreatedAt, Success: true}
		// Sleep markers are not step records.
		if res, decErr := DecodeCheckpoint(cp.Data); decErr == nil {
			entry.Success = res.Success
			entry.Error = res.Error
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
