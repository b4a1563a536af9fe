package vectorflow_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/vectorflow"
)

func TestDefaultConfig(t *testing.T) {
	cfg := vectorflow.DefaultConfig()
	if cfg.Concurrency != 10 {
		t.Errorf("Concurrency = %d", cfg.Concurrency)
	}
	if cfg.Store.Driver != "memory" || cfg.Namespace != "default" {
		t.Errorf("store/namespace = %q/%q", cfg.Store.Driver, cfg.Namespace)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != time.Second || cfg.Retry.MaxDelay != 30*time.Second {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Bulk.MaxItems != 50 || cfg.Cleanup.MaxAgeHours != 24 {
		t.Errorf("Bulk/Cleanup = %+v %+v", cfg.Bulk, cfg.Cleanup)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectorflow.yaml")
	yaml := `
concurrency: 4
namespace: docs
store:
  driver: sqlite
  dsn: /tmp/vf.db
retry:
  max_attempts: 5
  base_delay: 250ms
bulk:
  max_items: 20
cleanup:
  schedule: "@hourly"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VECTORFLOW_NAMESPACE", "override")
	t.Setenv("VECTORFLOW_CONCURRENCY", "not-a-number")

	cfg, err := vectorflow.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Namespace != "override" {
		t.Errorf("Namespace = %q, want env override", cfg.Namespace)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want file value when env is malformed", cfg.Concurrency)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != "/tmp/vf.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.BaseDelay != 250*time.Millisecond {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Retry.MaxDelay != 30*time.Second {
		t.Errorf("unset MaxDelay lost its default: %s", cfg.Retry.MaxDelay)
	}
	if cfg.Bulk.MaxItems != 20 || cfg.Cleanup.Schedule != "@hourly" || cfg.Cleanup.MaxAgeHours != 24 {
		t.Errorf("Bulk/Cleanup = %+v %+v", cfg.Bulk, cfg.Cleanup)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := vectorflow.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("concurrency: [1"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := vectorflow.LoadConfig(path); err == nil {
		t.Error("malformed yaml accepted")
	}
}

func TestLoadConfig_NoPath(t *testing.T) {
	t.Setenv("VECTORFLOW_STORE_DRIVER", "redis")
	cfg, err := vectorflow.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Store.Driver != "redis" {
		t.Errorf("Store.Driver = %q", cfg.Store.Driver)
	}
}
