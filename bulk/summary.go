package bulk

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/job"
)

// Aggregate is the derived state of a whole batch.
type Aggregate string

const (
	// AggregateProcessing means at least one child is not terminal.
	AggregateProcessing Aggregate = "processing"
	// AggregateCompleted means every child completed.
	AggregateCompleted Aggregate = "completed"
	// AggregateFailed means every child failed.
	AggregateFailed Aggregate = "failed"
	// AggregatePartial means every child is terminal and some failed.
	AggregatePartial Aggregate = "partial"
)

// Counts tallies child records per status. Missing counts children whose
// records have already expired.
type Counts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Missing    int `json:"missing,omitempty"`
}

// Summary is the on-demand view of a bulk job.
type Summary struct {
	ParentID   string     `json:"parentId"`
	Status     job.Status `json:"status"`
	Aggregate  Aggregate  `json:"aggregateStatus"`
	TotalItems int        `json:"totalItems"`
	Dropped    int        `json:"dropped,omitempty"`
	Counts     Counts     `json:"counts"`
	Children   []Child    `json:"childResults"`
}

// Summarize reads the parent and each child record and derives the
// batch state. Nothing is written.
func (c *Coordinator) Summarize(ctx context.Context, parentID string) (*Summary, error) {
	parent, err := c.jobs.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.Kind != job.KindBulk {
		return nil, &vectorflow.ValidationError{Field: "id", Message: fmt.Sprintf("job %s is not a bulk job", parentID)}
	}

	s := &Summary{ParentID: parent.ID, Status: parent.Status}
	var (
		childIDs []string
		indexes  []int
	)
	if parent.Metadata != nil {
		s.TotalItems = parent.Metadata.TotalItems
		s.Dropped = parent.Metadata.Dropped
		childIDs = parent.Metadata.ChildIDs
		indexes = parent.Metadata.ChildIndexes
	}

	s.Children = make([]Child, 0, len(childIDs))
	for i, childID := range childIDs {
		rec, getErr := c.jobs.Get(ctx, childID)
		if errors.Is(getErr, vectorflow.ErrJobNotFound) {
			s.Counts.Missing++
			continue
		}
		if getErr != nil {
			return nil, fmt.Errorf("bulk: get child %s: %w", childID, getErr)
		}
		switch rec.Status {
		case job.StatusPending:
			s.Counts.Pending++
		case job.StatusProcessing:
			s.Counts.Processing++
		case job.StatusCompleted:
			s.Counts.Completed++
		case job.StatusFailed:
			s.Counts.Failed++
		}
		index := i
		if len(indexes) == len(childIDs) {
			index = indexes[i]
		}
		s.Children = append(s.Children, Child{Index: index, JobID: rec.ID, Status: rec.Status, Error: rec.Error})
	}
	s.Aggregate = aggregate(s.Counts)
	return s, nil
}

func aggregate(c Counts) Aggregate {
	switch {
	case c.Pending+c.Processing > 0:
		return AggregateProcessing
	case c.Failed == 0:
		return AggregateCompleted
	case c.Completed == 0:
		return AggregateFailed
	default:
		return AggregatePartial
	}
}
