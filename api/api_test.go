package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/api"
	"github.com/xraph/vectorflow/engine"
	"github.com/xraph/vectorflow/inference"
	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/service"
	"github.com/xraph/vectorflow/store/memory"
	"github.com/xraph/vectorflow/vectorindex"
)

type nopIndex struct{}

func (nopIndex) Upsert(context.Context, string, []vectorindex.Vector) error { return nil }

func (nopIndex) DeleteByIDs(_ context.Context, _ string, ids []string) (int, error) {
	return len(ids), nil
}

func (nopIndex) Query(context.Context, []float32, vectorindex.QueryOptions) ([]vectorindex.Match, error) {
	return nil, nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := vectorflow.DefaultConfig()
	cfg.Concurrency = 2
	cfg.Retry = vectorflow.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	cfg.External.PollInterval = 2 * time.Millisecond

	eng, err := engine.Build(memory.New(), engine.WithConfig(cfg), engine.WithLogger(logger))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	embedder := inference.EmbedderFunc(func(context.Context, string, string) ([]float32, error) {
		return []float32{0.1, 0.2, 0.3}, nil
	})
	svc, err := service.New(eng, service.Deps{Embedder: embedder, Index: nopIndex{}})
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	srv := httptest.NewServer(api.New(svc, logger).Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = eng.Stop(ctx)
	})
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestCreateAndGetJob(t *testing.T) {
	srv := newServer(t)

	var created service.CreateResponse
	code := do(t, srv, http.MethodPost, "/v1/jobs",
		`{"kind":"creation","text":"Hello world","vectorId":"abc"}`, &created)
	if code != http.StatusAccepted {
		t.Fatalf("POST /v1/jobs = %d", code)
	}
	if created.JobID == "" || created.Status != job.StatusProcessing {
		t.Fatalf("created = %+v", created)
	}

	var rec job.Record
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if code := do(t, srv, http.MethodGet, "/v1/jobs/"+created.JobID, "", &rec); code != http.StatusOK {
			t.Fatalf("GET job = %d", code)
		}
		if rec.Status.IsTerminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rec.Status != job.StatusCompleted || rec.Metadata == nil || rec.Metadata.VectorID != "abc" {
		t.Fatalf("record = %+v", rec)
	}

	var timeline []map[string]any
	if code := do(t, srv, http.MethodGet, "/v1/runs/"+created.ExternalHandleID+"/timeline", "", &timeline); code != http.StatusOK {
		t.Fatalf("GET timeline = %d", code)
	}
	if len(timeline) == 0 {
		t.Error("timeline is empty for a finished run")
	}

	var stats api.StatsResponse
	if code := do(t, srv, http.MethodGet, "/v1/stats", "", &stats); code != http.StatusOK {
		t.Fatalf("GET /v1/stats = %d", code)
	}
	if stats.Jobs.Completed != 1 || stats.Process.JobsCreated < 1 {
		t.Errorf("stats = %+v", stats)
	}

	var list api.ListJobsResponse
	if code := do(t, srv, http.MethodGet, "/v1/jobs?kind=creation&status=completed", "", &list); code != http.StatusOK {
		t.Fatalf("GET /v1/jobs = %d", code)
	}
	if list.Total != 1 || len(list.Jobs) != 1 || list.Jobs[0].ID != created.JobID {
		t.Errorf("list = %+v", list)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv := newServer(t)

	// Occupy a job id for the conflict case.
	if code := do(t, srv, http.MethodPost, "/v1/jobs", `{"kind":"deletion","jobId":"taken","ids":["a"]}`, nil); code != http.StatusAccepted {
		t.Fatalf("seed job = %d", code)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
		field  string
	}{
		{"empty text", http.MethodPost, "/v1/jobs", `{"kind":"creation","text":""}`, http.StatusBadRequest, "text"},
		{"unknown kind", http.MethodPost, "/v1/jobs", `{"kind":"reindex"}`, http.StatusBadRequest, "kind"},
		{"malformed body", http.MethodPost, "/v1/jobs", `{`, http.StatusBadRequest, ""},
		{"duplicate id", http.MethodPost, "/v1/jobs", `{"kind":"deletion","jobId":"taken","ids":["b"]}`, http.StatusConflict, ""},
		{"missing job", http.MethodGet, "/v1/jobs/nope", "", http.StatusNotFound, ""},
		{"missing summary", http.MethodGet, "/v1/jobs/nope/summary", "", http.StatusNotFound, ""},
		{"summary of non-bulk", http.MethodGet, "/v1/jobs/taken/summary", "", http.StatusBadRequest, "id"},
		{"missing run", http.MethodGet, "/v1/runs/nope/timeline", "", http.StatusNotFound, ""},
		{"bad status filter", http.MethodGet, "/v1/jobs?status=lost", "", http.StatusBadRequest, "status"},
		{"bad limit", http.MethodGet, "/v1/jobs?limit=ten", "", http.StatusBadRequest, "limit"},
		{"bad max age", http.MethodPost, "/v1/jobs/cleanup?maxAgeHours=soon", "", http.StatusBadRequest, "maxAgeHours"},
		{"negative max age", http.MethodPost, "/v1/jobs/cleanup?maxAgeHours=-1", "", http.StatusBadRequest, "maxAgeHours"},
		{"empty query", http.MethodPost, "/v1/query", `{}`, http.StatusBadRequest, ""},
		{"unknown query field", http.MethodPost, "/v1/query", `{"text":"a","k":1}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body api.ErrorResponse
			code := do(t, srv, tt.method, tt.path, tt.body, &body)
			if code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", code, tt.want, body.Error)
			}
			if body.Error == "" {
				t.Error("error message is empty")
			}
			if tt.field != "" && body.Field != tt.field {
				t.Errorf("field = %q, want %q", body.Field, tt.field)
			}
		})
	}
}

func TestInvalidRequestLeavesNoRecord(t *testing.T) {
	srv := newServer(t)

	if code := do(t, srv, http.MethodPost, "/v1/jobs", `{"kind":"deletion","ids":[]}`, nil); code != http.StatusBadRequest {
		t.Fatalf("POST = %d", code)
	}
	var list api.ListJobsResponse
	do(t, srv, http.MethodGet, "/v1/jobs", "", &list)
	if list.Total != 0 || len(list.Jobs) != 0 {
		t.Errorf("list = %+v", list)
	}
}

func TestCleanupAndHealth(t *testing.T) {
	srv := newServer(t)

	var health map[string]string
	if code := do(t, srv, http.MethodGet, "/health", "", &health); code != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("health = %d %v", code, health)
	}

	var res api.CleanupResponse
	if code := do(t, srv, http.MethodPost, "/v1/jobs/cleanup", "", &res); code != http.StatusOK {
		t.Fatalf("cleanup = %d", code)
	}
	if res.Removed != 0 || res.MaxAgeHours != vectorflow.DefaultConfig().Cleanup.MaxAgeHours {
		t.Errorf("cleanup = %+v", res)
	}
}

func TestQuery(t *testing.T) {
	srv := newServer(t)

	var resp service.QueryResponse
	if code := do(t, srv, http.MethodPost, "/v1/query", `{"text":"hello","topK":3}`, &resp); code != http.StatusOK {
		t.Fatalf("query = %d", code)
	}
	if resp.Matches == nil || len(resp.Matches) != 0 {
		t.Errorf("matches = %#v", resp.Matches)
	}
}
