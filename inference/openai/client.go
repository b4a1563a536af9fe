// Package openai implements inference.Embedder against an
// OpenAI-compatible /embeddings endpoint.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/vectorflow/inference"
	"github.com/xraph/vectorflow/internal/httpjson"
)

// Config for the embeddings client.
type Config struct {
	APIKey  string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL string        // default https://api.openai.com/v1
	Model   string        // default text-embedding-3-small
	Timeout time.Duration // http client timeout
	// RequestsPerSecond limits outgoing requests. Zero disables the limit.
	RequestsPerSecond float64
}

// Client calls the embeddings endpoint.
type Client struct {
	model string
	api   *httpjson.Client
}

// NewClient builds a client from cfg, filling defaults.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, err := httpjson.NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	api := &httpjson.Client{
		Service: "openai",
		BaseURL: base,
		Token:   cfg.APIKey,
		HTTP:    &http.Client{Timeout: cfg.Timeout},
		Logger:  logger,
	}
	if cfg.RequestsPerSecond > 0 {
		api.Limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{model: cfg.Model, api: api}, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed implements inference.Embedder.
func (c *Client) Embed(ctx context.Context, text, model string) ([]float32, error) {
	if model == "" {
		model = c.model
	}
	var resp embeddingResponse
	if err := c.api.Do(ctx, http.MethodPost, "/embeddings", embeddingRequest{Model: model, Input: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, inference.ErrNoEmbedding
	}
	return resp.Data[0].Embedding, nil
}

var _ inference.Embedder = (*Client)(nil)
