// Package external chains independently durable sub-jobs from inside a
// workflow run.
//
// A sub-job is created on an Engine and then polled until it reaches a
// terminal status or a deadline passes. Creation, every poll, and every
// wait between polls are checkpointed steps of the calling run, so a
// resumed run re-attaches to the sub-job it already created instead of
// submitting a new one.
package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle status reported by a sub-job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusRunning    Status = "running"
	StatusWaiting    Status = "waiting"
	StatusComplete   Status = "complete"
	StatusErrored    Status = "errored"
	StatusFailed     Status = "failed"
	StatusTerminated Status = "terminated"
)

// IsTerminal reports whether the sub-job will not change status again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusErrored, StatusFailed, StatusTerminated:
		return true
	default:
		return false
	}
}

// Snapshot is a point-in-time view of a sub-job.
type Snapshot struct {
	Status Status          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Handle refers to one sub-job on an engine.
type Handle interface {
	ID() string
	Status(ctx context.Context) (Snapshot, error)
}

// Engine creates and looks up sub-jobs. Create with an id that already
// exists must return the existing sub-job rather than start a second one.
type Engine interface {
	Create(ctx context.Context, id string, params json.RawMessage) (Handle, error)
	Get(ctx context.Context, id string) (Handle, error)
}

var (
	// ErrFailed matches every *FailureError.
	ErrFailed = errors.New("external: sub-job failed")
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("external: sub-job timed out")
)

// FailureError reports a sub-job that ended errored or terminated.
type FailureError struct {
	Label  string
	Status Status
	Reason string
}

func (e *FailureError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "Unknown error"
	}
	return fmt.Sprintf("%s workflow failed: %s", e.Label, reason)
}

// Is reports whether target is ErrFailed.
func (e *FailureError) Is(target error) bool { return target == ErrFailed }

// TimeoutError reports a sub-job that was still non-terminal when its
// deadline passed. The sub-job itself is left running.
type TimeoutError struct {
	Label   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s workflow did not complete within timeout (%s)", e.Label, e.Timeout)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
