// Package jobs is the in-process background scheduler used for the
// fire-and-forget side effects of a message send (link previews, push
// dispatch) and for periodic sweeps. Jobs are plain funcs fed to a worker
// pool over a channel; a crash or full queue loses the job, never the
// primary write.
package jobs

import (
	"context"
	"sync"
	"time"

	"teamchat/internal/logging"
)

// Job is a unit of background work. The context passed to it stays live
// through the shutdown drain, bounded by the drain timeout.
type Job func(ctx context.Context)

// drainTimeout bounds how long shutdown waits for buffered jobs to finish.
const drainTimeout = 5 * time.Second

type Queue struct {
	ch      chan Job
	workers int

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// New creates a queue with the given worker count and buffer size.
func New(workers, buffer int) *Queue {
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Queue{
		ch:      make(chan Job, buffer),
		workers: workers,
		timers:  make(map[*time.Timer]struct{}),
	}
}

// Run consumes jobs until ctx is canceled, then drains whatever is still
// buffered before returning. Blocks; start it in a goroutine.
func (q *Queue) Run(ctx context.Context) {
	// Jobs accepted before shutdown still run to completion, so workers
	// get a context that survives the cancellation of ctx.
	jobCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range q.ch {
				q.runOne(jobCtx, job)
			}
		}()
	}
	<-ctx.Done()

	q.mu.Lock()
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		logging.Warn().Msg("job drain timed out, abandoning remaining jobs")
	}
}

func (q *Queue) runOne(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Any("panic", r).Msg("background job panicked")
		}
	}()
	job(ctx)
}

// Now enqueues a job for immediate execution. Returns false if the queue is
// full or shut down; callers treat that as a skipped side effect.
func (q *Queue) Now(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- job:
		return true
	default:
		logging.Warn().Msg("job queue full, dropping job")
		return false
	}
}

// After schedules a job to be enqueued once the delay elapses.
func (q *Queue) After(delay time.Duration, job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, t)
		q.mu.Unlock()
		q.Now(job)
	})
	q.timers[t] = struct{}{}
}
