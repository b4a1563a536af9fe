// Package remote implements vectorindex.Index over a managed index's
// REST API.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/vectorflow/internal/httpjson"
	"github.com/xraph/vectorflow/vectorindex"
)

// Config for the index client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client passes index operations through to the REST API.
type Client struct {
	api *httpjson.Client
}

// NewClient builds a client from cfg.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, err := httpjson.NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: %w", err)
	}
	return &Client{api: &httpjson.Client{
		Service: "vectorindex",
		BaseURL: base,
		Token:   cfg.APIKey,
		HTTP:    &http.Client{Timeout: cfg.Timeout},
		Logger:  logger,
	}}, nil
}

type upsertRequest struct {
	Namespace string               `json:"namespace,omitempty"`
	Vectors   []vectorindex.Vector `json:"vectors"`
}

type deleteRequest struct {
	Namespace string   `json:"namespace,omitempty"`
	IDs       []string `json:"ids"`
}

type deleteResponse struct {
	Deleted int `json:"deleted"`
}

type queryRequest struct {
	Vector []float32 `json:"vector"`
	vectorindex.QueryOptions
}

type queryResponse struct {
	Matches []vectorindex.Match `json:"matches"`
}

// Upsert implements vectorindex.Index.
func (c *Client) Upsert(ctx context.Context, namespace string, vectors []vectorindex.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	return c.api.Do(ctx, http.MethodPost, "/vectors/upsert", upsertRequest{Namespace: namespace, Vectors: vectors}, nil)
}

// DeleteByIDs implements vectorindex.Index. When the API does not report
// a count, the number of requested IDs is returned.
func (c *Client) DeleteByIDs(ctx context.Context, namespace string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	resp := deleteResponse{Deleted: -1}
	if err := c.api.Do(ctx, http.MethodPost, "/vectors/delete", deleteRequest{Namespace: namespace, IDs: ids}, &resp); err != nil {
		return 0, err
	}
	if resp.Deleted < 0 {
		return len(ids), nil
	}
	return resp.Deleted, nil
}

// Query implements vectorindex.Index.
func (c *Client) Query(ctx context.Context, vector []float32, opts vectorindex.QueryOptions) ([]vectorindex.Match, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	var resp queryResponse
	if err := c.api.Do(ctx, http.MethodPost, "/query", queryRequest{Vector: vector, QueryOptions: opts}, &resp); err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

var _ vectorindex.Index = (*Client)(nil)
