package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/service"
)

func (a *API) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.svc.Engine().Runner().Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, run)
}

func (a *API) runTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := a.svc.Timeline(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, entries)
}

func (a *API) query(w http.ResponseWriter, r *http.Request) {
	var req service.QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		a.writeError(w, r, &vectorflow.ValidationError{Message: "invalid query body: " + err.Error()})
		return
	}
	resp, err := a.svc.Query(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, resp)
}
