package command_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/internal/command"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := command.NewRootCmd("test")
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func sqliteEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VECTORFLOW_STORE_DRIVER", "sqlite")
	t.Setenv("VECTORFLOW_STORE_DSN", filepath.Join(t.TempDir(), "vectorflow.db"))
	t.Setenv("VECTORFLOW_LOG_LEVEL", "error")
}

func TestMigrateThenListEmpty(t *testing.T) {
	sqliteEnv(t)

	out, err := run(t, "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "Migrated sqlite store") {
		t.Errorf("migrate output = %q", out)
	}

	out, err = run(t, "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	if strings.TrimSpace(out) != "No jobs" {
		t.Errorf("jobs list output = %q", out)
	}
}

func TestCleanupJSON(t *testing.T) {
	sqliteEnv(t)
	if _, err := run(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	out, err := run(t, "cleanup", "--max-age-hours", "2", "--json")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	var res map[string]int
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res["removed"] != 0 || res["maxAgeHours"] != 2 {
		t.Errorf("cleanup result = %v", res)
	}

	if _, err := run(t, "cleanup", "--max-age-hours=-1"); err == nil {
		t.Error("negative max age accepted")
	}
}

func TestJobsGetMissing(t *testing.T) {
	sqliteEnv(t)
	if _, err := run(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, err := run(t, "jobs", "get", "nope")
	if err == nil || !strings.Contains(err.Error(), vectorflow.ErrJobNotFound.Error()) {
		t.Errorf("jobs get err = %v", err)
	}
}

func TestUnknownStoreDriver(t *testing.T) {
	t.Setenv("VECTORFLOW_STORE_DRIVER", "cassandra")
	if _, err := run(t, "migrate"); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		cfg     vectorflow.LogConfig
		wantErr bool
	}{
		{vectorflow.LogConfig{Format: "text", Level: "info"}, false},
		{vectorflow.LogConfig{Format: "json", Level: "debug"}, false},
		{vectorflow.LogConfig{Format: "xml", Level: "info"}, true},
		{vectorflow.LogConfig{Format: "text", Level: "loud"}, true},
	}
	for _, tt := range tests {
		_, err := command.NewLogger(tt.cfg, &bytes.Buffer{})
		if (err != nil) != tt.wantErr {
			t.Errorf("NewLogger(%+v) err = %v, wantErr %v", tt.cfg, err, tt.wantErr)
		}
	}
}
