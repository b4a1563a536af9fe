package remote_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xraph/vectorflow/vectorindex"
	"github.com/xraph/vectorflow/vectorindex/remote"
)

func TestClient(t *testing.T) {
	var upserted struct {
		Namespace string               `json:"namespace"`
		Vectors   []vectorindex.Vector `json:"vectors"`
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /vectors/upsert", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&upserted)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /vectors/delete", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []string `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = io.WriteString(w, `{"deleted":1}`)
	})
	mux.HandleFunc("POST /query", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["topK"] != float64(10) || req["namespace"] != "docs" {
			t.Errorf("query body = %v", req)
		}
		_, _ = io.WriteString(w, `{"matches":[{"id":"abc","score":0.9}]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := remote.NewClient(remote.Config{BaseURL: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ctx := context.Background()

	err = c.Upsert(ctx, "docs", []vectorindex.Vector{{ID: "abc", Values: []float32{0.1, 0.2, 0.3}}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if upserted.Namespace != "docs" || len(upserted.Vectors) != 1 || upserted.Vectors[0].ID != "abc" {
		t.Errorf("upserted = %+v", upserted)
	}

	n, err := c.DeleteByIDs(ctx, "docs", []string{"abc", "def"})
	if err != nil || n != 1 {
		t.Errorf("DeleteByIDs = %d, %v; want 1", n, err)
	}

	matches, err := c.Query(ctx, []float32{0.1}, vectorindex.QueryOptions{Namespace: "docs"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "abc" {
		t.Errorf("matches = %+v", matches)
	}
}

func TestNewClient_RequiresScheme(t *testing.T) {
	if _, err := remote.NewClient(remote.Config{BaseURL: "index.local"}, nil); err == nil {
		t.Fatal("NewClient accepted a URL without scheme")
	}
}
