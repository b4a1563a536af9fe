package cron_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/vectorflow/cron"
)

func newScheduler() *cron.Scheduler {
	return cron.NewScheduler(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 * * * *", false},
		{"@hourly", false},
		{"@every 30m", false},
		{"* * * * * *", true},
		{"not a schedule", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := cron.ParseSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSchedule(%q) err = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestRegister_RejectsInvalid(t *testing.T) {
	s := newScheduler()
	noop := func(context.Context) error { return nil }

	if err := s.Register("", "@hourly", noop); err == nil {
		t.Error("empty name accepted")
	}
	if err := s.Register("cleanup", "every day", noop); err == nil {
		t.Error("bad schedule accepted")
	}
	if n := len(s.Entries()); n != 0 {
		t.Errorf("entries = %d after rejected registrations", n)
	}
}

func TestRegister_ReplacesByName(t *testing.T) {
	s := newScheduler()
	noop := func(context.Context) error { return nil }

	if err := s.Register("cleanup", "@hourly", noop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register("cleanup", "@daily", noop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register("audit", "@weekly", noop); err != nil {
		t.Fatalf("Register: %v", err)
	}

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Name != "audit" || entries[1].Name != "cleanup" || entries[1].Schedule != "@daily" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestScheduler_FiresAndSurvivesFailures(t *testing.T) {
	s := newScheduler()
	var fired atomic.Int32
	err := s.Register("flaky", "@every 1s", func(context.Context) error {
		if fired.Add(1) == 1 {
			return errors.New("first run fails")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	s.Start()

	deadline := time.Now().Add(5 * time.Second)
	for fired.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if fired.Load() < 2 {
		t.Fatalf("fired %d times, want at least 2", fired.Load())
	}
}

func TestStop_CancelsRunningTask(t *testing.T) {
	s := newScheduler()
	started := make(chan struct{})
	var once atomic.Bool
	err := s.Register("slow", "@every 1s", func(ctx context.Context) error {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	s.Start()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("task never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop did not wait for the cancelled task: %v", err)
	}
}
