package redis

// keys builds Redis key names under a common prefix.
type keys string

const defaultPrefix keys = "vectorflow:"

// job returns the Hash key for a job record: {prefix}job:{id}
func (k keys) job(id string) string { return string(k) + "job:" + id }

// jobIndex is the Sorted Set of job IDs scored by creation time.
func (k keys) jobIndex() string { return string(k) + "jobs" }

// run returns the Hash key for a workflow run: {prefix}run:{id}
func (k keys) run(id string) string { return string(k) + "run:" + id }

// runIndex is the Sorted Set of run IDs scored by start time.
func (k keys) runIndex() string { return string(k) + "runs" }

// checkpoints returns the Hash of step name to checkpoint data for a run.
func (k keys) checkpoints(runID string) string { return string(k) + "checkpoint:" + runID }

// checkpointTimes returns the Hash of step name to creation time for a run.
func (k keys) checkpointTimes(runID string) string {
	return string(k) + "checkpoint_at:" + runID
}

// checkpointOrder returns the Sorted Set of step names in first-save order.
func (k keys) checkpointOrder(runID string) string {
	return string(k) + "checkpoint_idx:" + runID
}

// value returns the String key for a kv entry.
func (k keys) value(key string) string { return string(k) + "kv:" + key }
