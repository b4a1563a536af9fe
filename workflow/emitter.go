package workflow

import (
	"context"
	"time"
)

// NopEmitter discards every lifecycle event.
type NopEmitter struct{}

func (NopEmitter) EmitStepCompleted(context.Context, *Run, string, time.Duration)            {}
func (NopEmitter) EmitStepFailed(context.Context, *Run, string, error)                       {}
func (NopEmitter) EmitStepRetrying(context.Context, *Run, string, int, error, time.Duration) {}
func (NopEmitter) EmitWorkflowStarted(context.Context, *Run)                                 {}
func (NopEmitter) EmitWorkflowCompleted(context.Context, *Run, time.Duration)                {}
func (NopEmitter) EmitWorkflowFailed(context.Context, *Run, error)                           {}
func (NopEmitter) EmitWorkflowProgress(context.Context, *Run, Progress)                      {}

var _ RunEmitter = NopEmitter{}
