package api

import (
	"net/http"

	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/observability"
	"github.com/xraph/vectorflow/service"
)

// JobCountsResponse holds the number of stored job records per status.
type JobCountsResponse struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// StatsResponse combines stored job counts with the lifecycle counters
// this process has observed since start.
type StatsResponse struct {
	Jobs    JobCountsResponse   `json:"jobs"`
	Process observability.Stats `json:"process"`
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	var counts JobCountsResponse
	for _, status := range []job.Status{
		job.StatusPending, job.StatusProcessing, job.StatusCompleted, job.StatusFailed,
	} {
		n, err := a.svc.CountJobs(r.Context(), service.ListRequest{Status: status})
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		switch status {
		case job.StatusPending:
			counts.Pending = n
		case job.StatusProcessing:
			counts.Processing = n
		case job.StatusCompleted:
			counts.Completed = n
		case job.StatusFailed:
			counts.Failed = n
		}
	}

	a.writeJSON(w, http.StatusOK, StatsResponse{
		Jobs:    counts,
		Process: a.svc.Engine().Metrics().Stats(),
	})
}
