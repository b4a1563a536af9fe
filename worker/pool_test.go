package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/vectorflow/worker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPool_StartStop(t *testing.T) {
	pool := worker.NewPool(testLogger(), worker.WithPoolConcurrency(2))

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	// Double start should be no-op.
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected double-start error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	// Double stop should be no-op.
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("unexpected double-stop error: %v", err)
	}
}

func TestPool_ExecutesTasks(t *testing.T) {
	pool := worker.NewPool(testLogger(), worker.WithPoolConcurrency(3))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = pool.Stop(context.Background()) }()

	var count atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		err := pool.Submit(context.Background(), "task", func(_ context.Context) {
			defer wg.Done()
			count.Add(1)
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()

	if got := count.Load(); got != 10 {
		t.Errorf("executed = %d, want 10", got)
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := worker.NewPool(testLogger(), worker.WithPoolConcurrency(2))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = pool.Stop(context.Background()) }()

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		_ = pool.Submit(context.Background(), "task", func(_ context.Context) {
			defer wg.Done()
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
		})
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := worker.NewPool(testLogger())
	if err := pool.Submit(context.Background(), "early", func(context.Context) {}); !errors.Is(err, worker.ErrPoolStopped) {
		t.Errorf("Submit before Start = %v, want ErrPoolStopped", err)
	}

	_ = pool.Start(context.Background())
	_ = pool.Stop(context.Background())

	if err := pool.Submit(context.Background(), "late", func(context.Context) {}); !errors.Is(err, worker.ErrPoolStopped) {
		t.Errorf("Submit after Stop = %v, want ErrPoolStopped", err)
	}
}

func TestPool_StopCancelsActiveTasksOnDeadline(t *testing.T) {
	pool := worker.NewPool(testLogger(), worker.WithPoolConcurrency(1))
	_ = pool.Start(context.Background())

	started := make(chan struct{})
	cancelled := make(chan struct{})
	_ = pool.Submit(context.Background(), "slow", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("active task was not cancelled")
	}
}

func TestPool_RecoversPanics(t *testing.T) {
	pool := worker.NewPool(testLogger(), worker.WithPoolConcurrency(1))
	_ = pool.Start(context.Background())
	defer func() { _ = pool.Stop(context.Background()) }()

	_ = pool.Submit(context.Background(), "panic", func(context.Context) { panic("boom") })

	done := make(chan struct{})
	_ = pool.Submit(context.Background(), "after", func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not survive a panicking task")
	}
}
