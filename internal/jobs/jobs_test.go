package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNowRunsJobs(t *testing.T) {
	q := New(2, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	var ran atomic.Int32
	done := make(chan struct{})
	if !q.Now(func(context.Context) {
		ran.Add(1)
		close(done)
	}) {
		t.Fatal("enqueue should succeed")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
	if ran.Load() != 1 {
		t.Fatalf("ran = %d", ran.Load())
	}
}

func TestNowDropsWhenFull(t *testing.T) {
	// No workers running: the buffer fills and the next enqueue is dropped.
	q := New(1, 2)
	if !q.Now(func(context.Context) {}) || !q.Now(func(context.Context) {}) {
		t.Fatal("buffer should hold two jobs")
	}
	if q.Now(func(context.Context) {}) {
		t.Fatal("full queue must drop, not block")
	}
}

func TestAfterDelaysExecution(t *testing.T) {
	q := New(1, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	done := make(chan time.Time, 1)
	start := time.Now()
	q.After(50*time.Millisecond, func(context.Context) {
		done <- time.Now()
	})

	select {
	case at := <-done:
		if at.Sub(start) < 50*time.Millisecond {
			t.Fatalf("job ran after %v, want >= 50ms", at.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delayed job did not run")
	}
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	q := New(1, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Now(func(context.Context) { panic("boom") })

	done := make(chan struct{})
	q.Now(func(context.Context) { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after a panicking job")
	}
}

func TestShutdownDrainsBufferedJobs(t *testing.T) {
	q := New(1, 16)
	ctx, cancel := context.WithCancel(context.Background())

	gate := make(chan struct{})
	started := make(chan struct{})
	q.Now(func(context.Context) {
		close(started)
		<-gate
	})

	// Counted only when the job's context is still live during the drain.
	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		q.Now(func(jobCtx context.Context) {
			if jobCtx.Err() == nil {
				ran.Add(1)
			}
		})
	}

	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()
	<-started
	cancel()
	close(gate)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	if ran.Load() != 3 {
		t.Fatalf("drained jobs ran = %d, want 3", ran.Load())
	}
}

func TestAfterIgnoredAfterShutdown(t *testing.T) {
	q := New(1, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	// Must not schedule or panic once the queue is closed.
	q.After(time.Millisecond, func(context.Context) {
		t.Error("job ran after shutdown")
	})
	time.Sleep(20 * time.Millisecond)
}
