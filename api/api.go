// Package api exposes the vectorflow service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/service"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// API wires the HTTP handlers to a Service.
type API struct {
	svc    *service.Service
	logger *slog.Logger
}

// New creates an API for svc.
func New(svc *service.Service, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{svc: svc, logger: logger}
}

// Handler returns a router with every route registered.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the vectorflow routes on r.
func (a *API) RegisterRoutes(r *mux.Router) {
	r.Use(a.logRequests)
	r.HandleFunc("/health", a.health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	// Jobs
	v1.HandleFunc("/jobs", a.createJob).Methods(http.MethodPost)
	v1.HandleFunc("/jobs", a.listJobs).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/cleanup", a.cleanup).Methods(http.MethodPost)
	v1.HandleFunc("/jobs/{id}", a.getJob).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id}/summary", a.bulkSummary).Methods(http.MethodGet)

	// Runs
	v1.HandleFunc("/runs/{id}", a.getRun).Methods(http.MethodGet)
	v1.HandleFunc("/runs/{id}/timeline", a.runTimeline).Methods(http.MethodGet)

	// Search
	v1.HandleFunc("/query", a.query).Methods(http.MethodPost)
	v1.HandleFunc("/stats", a.stats).Methods(http.MethodGet)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Engine().Store().Ping(r.Context()); err != nil {
		a.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to write response", slog.String("error", err.Error()))
	}
}

// writeError maps vectorflow errors to HTTP statuses: validation
// failures are 400, missing jobs and runs 404, conflicts 409, and
// everything else 500.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: err.Error()}

	var ve *vectorflow.ValidationError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		resp.Field = ve.Field
	case errors.Is(err, vectorflow.ErrJobNotFound),
		errors.Is(err, vectorflow.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, vectorflow.ErrJobAlreadyExists):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	a.writeJSON(w, status, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}
