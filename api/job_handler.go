package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/service"
)

// ListJobsResponse wraps a page of job records.
type ListJobsResponse struct {
	Jobs  []*job.Record `json:"jobs"`
	Total int64         `json:"total"`
}

// CleanupResponse reports an expiry pass.
type CleanupResponse struct {
	Removed     int `json:"removed"`
	MaxAgeHours int `json:"maxAgeHours"`
}

func (a *API) createJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		a.writeError(w, r, &vectorflow.ValidationError{Message: "read body: " + err.Error()})
		return
	}
	req, err := service.ParseCreateRequest(body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp, err := a.svc.CreateJob(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusAccepted, resp)
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit", 50)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	offset, err := intParam(q.Get("offset"), "offset", 0)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	req := service.ListRequest{
		Kind:   job.Kind(q.Get("kind")),
		Status: job.Status(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	}
	recs, err := a.svc.ListJobs(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	total, err := a.svc.CountJobs(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*job.Record{}
	}
	a.writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: recs, Total: total})
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.GetJobStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, rec)
}

func (a *API) bulkSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := a.svc.BulkSummary(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, sum)
}

func (a *API) cleanup(w http.ResponseWriter, r *http.Request) {
	maxAge, err := intParam(r.URL.Query().Get("maxAgeHours"), "maxAgeHours",
		a.svc.Engine().Config().Cleanup.MaxAgeHours)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	n, err := a.svc.Cleanup(r.Context(), maxAge)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, CleanupResponse{Removed: n, MaxAgeHours: maxAge})
}

func intParam(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &vectorflow.ValidationError{Field: name, Message: "must be an integer"}
	}
	return n, nil
}
