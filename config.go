package vectorflow

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for a vectorflow deployment.
type Config struct {
	// Concurrency is the maximum number of workflow runs executed
	// concurrently by the worker pool.
	Concurrency int `yaml:"concurrency"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Namespace scopes the job registry and vector writes.
	Namespace string `yaml:"namespace"`

	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Retry     RetryConfig     `yaml:"retry"`
	External  ExternalConfig  `yaml:"external"`
	Bulk      BulkConfig      `yaml:"bulk"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Inference InferenceConfig `yaml:"inference"`
	Index     IndexConfig     `yaml:"index"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is one of memory, sqlite, postgres, redis.
	Driver string `yaml:"driver"`
	// DSN is the driver-specific connection string (file path, postgres
	// URL, or redis URL).
	DSN string `yaml:"dsn"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LogConfig configures the slog handler built by the CLI.
type LogConfig struct {
	// Format is "text" or "json".
	Format string `yaml:"format"`
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
}

// RetryConfig is the default retry policy applied to I/O steps.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// ExternalConfig bounds sub-job polling.
type ExternalConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	// CreateRate limits sub-job creation per second. Zero disables the limit.
	CreateRate float64 `yaml:"create_rate"`
}

// BulkConfig configures fan-out.
type BulkConfig struct {
	MaxItems    int `yaml:"max_items"`
	Concurrency int `yaml:"concurrency"`
}

// CleanupConfig configures job expiry. Expiry never runs on its own;
// Schedule only registers an external trigger with the serve command.
type CleanupConfig struct {
	MaxAgeHours int    `yaml:"max_age_hours"`
	Schedule    string `yaml:"schedule"`
}

// InferenceConfig configures the embeddings endpoint.
type InferenceConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// IndexConfig configures the managed vector index.
type IndexConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		ShutdownTimeout: 30 * time.Second,
		Namespace:       "default",
		Store:           StoreConfig{Driver: "memory"},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Log: LogConfig{Format: "text", Level: "info"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
		},
		External: ExternalConfig{
			PollInterval: 2 * time.Second,
			Timeout:      5 * time.Minute,
		},
		Bulk:      BulkConfig{MaxItems: 50, Concurrency: 8},
		Cleanup:   CleanupConfig{MaxAgeHours: 24},
		Inference: InferenceConfig{Model: "text-embedding-3-small", Timeout: 30 * time.Second},
		Index:     IndexConfig{Timeout: 30 * time.Second},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig and then applies
// VECTORFLOW_* environment overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("vectorflow: read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("vectorflow: parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Namespace = getEnv("VECTORFLOW_NAMESPACE", cfg.Namespace)
	cfg.Store.Driver = getEnv("VECTORFLOW_STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.DSN = getEnv("VECTORFLOW_STORE_DSN", cfg.Store.DSN)
	cfg.Server.Addr = getEnv("VECTORFLOW_ADDR", cfg.Server.Addr)
	cfg.Log.Format = getEnv("VECTORFLOW_LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Level = getEnv("VECTORFLOW_LOG_LEVEL", cfg.Log.Level)
	cfg.Concurrency = getEnvInt("VECTORFLOW_CONCURRENCY", cfg.Concurrency)
	cfg.Bulk.MaxItems = getEnvInt("VECTORFLOW_BULK_MAX_ITEMS", cfg.Bulk.MaxItems)
	cfg.Cleanup.MaxAgeHours = getEnvInt("VECTORFLOW_CLEANUP_MAX_AGE_HOURS", cfg.Cleanup.MaxAgeHours)
	cfg.Inference.BaseURL = getEnv("VECTORFLOW_INFERENCE_URL", cfg.Inference.BaseURL)
	cfg.Inference.APIKey = getEnv("VECTORFLOW_INFERENCE_API_KEY", cfg.Inference.APIKey)
	cfg.Inference.Model = getEnv("VECTORFLOW_INFERENCE_MODEL", cfg.Inference.Model)
	cfg.Index.BaseURL = getEnv("VECTORFLOW_INDEX_URL", cfg.Index.BaseURL)
	cfg.Index.APIKey = getEnv("VECTORFLOW_INDEX_API_KEY", cfg.Index.APIKey)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
