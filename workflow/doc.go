// Package workflow runs durable, multi-step functions.
//
// Every step is checkpointed by (run ID, step name). A resumed run
// replays checkpointed steps from the store without invoking them and
// re-executes only what had not finished, so step names must be stable
// and unique within a run.
//
// # Defining a Workflow
//
//	var CreateVector = workflow.NewWorkflow("create-vector",
//	    func(wf *workflow.Workflow, in CreateInput) (CreateOutput, error) {
//	        vec, err := workflow.Step(wf, "embed", func(ctx context.Context) ([]float32, error) {
//	            return embedder.Embed(ctx, in.Text)
//	        }, workflow.WithRetry(backoff.DefaultPolicy()))
//	        if err != nil {
//	            return CreateOutput{}, err
//	        }
//	        ...
//	    },
//	)
//
// # Step Semantics
//
// A step runs up to MaxAttempts times, waiting min(Base*2^(k-1), Max)
// after the k-th failure. Steps are critical by default: exhaustion
// returns a *vectorflow.CriticalStepError, which the handler normally
// returns to fail the run. [NonCritical] steps checkpoint the failure
// and return StepResult{Success: false} instead.
//
// [Parallel] fans steps out concurrently without cancelling siblings on
// failure. [When] guards a step with a checkpointed predicate.
// [Workflow.Sleep] is a durable pause.
//
// # State Machine
//
// A [Run] moves through these states:
//
//	running → completed
//	running → failed
//
// A run interrupted by shutdown stays running and is picked up by
// [Runner.ResumeAll].
package workflow
