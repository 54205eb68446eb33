package game

import (
	"context"
	"sync"
	"sync/atomic"

	"TaskForce/internal/logging"
)

// Mutation is a change applied on the tick goroutine at the start of the
// next tick.
type Mutation func(s *Session)

// Job runs off the tick goroutine. The returned mutation, if any, is
// delivered back to the session.
type Job func(ctx context.Context) Mutation

type namedJob struct {
	name string
	fn   Job
}

// WorkQueue runs slow external calls (spawning, despawning) on a fixed pool
// of workers so the tick loop never blocks on them.
type WorkQueue struct {
	jobs    chan namedJob
	deliver func(Mutation) bool
	log     *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup
	pending sync.WaitGroup
	dropped atomic.Uint64
}

func NewWorkQueue(workers, size int, deliver func(Mutation) bool, log *logging.Logger) *WorkQueue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = workers * 16
	}
	if log == nil {
		log = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &WorkQueue{
		jobs:    make(chan namedJob, size),
		deliver: deliver,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		q.workers.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue schedules job without blocking. It returns false when the queue is
// full or closed.
func (q *WorkQueue) Enqueue(name string, job Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	q.pending.Add(1)
	select {
	case q.jobs <- namedJob{name: name, fn: job}:
		return true
	default:
		q.pending.Done()
		q.dropped.Add(1)
		q.log.Warn("work queue full, job dropped", "job", name)
		return false
	}
}

// Wait blocks until every enqueued job has run and delivered its mutation.
func (q *WorkQueue) Wait() { q.pending.Wait() }

// Dropped returns how many jobs were rejected because the queue was full.
func (q *WorkQueue) Dropped() uint64 { return q.dropped.Load() }

// Close cancels running jobs and stops the workers. Queued jobs still run
// with a canceled context.
func (q *WorkQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cancel()
	close(q.jobs)
	q.mu.Unlock()
	q.workers.Wait()
}

func (q *WorkQueue) worker() {
	defer q.workers.Done()
	for j := range q.jobs {
		q.run(j)
	}
}

func (q *WorkQueue) run(j namedJob) {
	defer q.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("job panicked", "job", j.name, "panic", r)
		}
	}()
	m := j.fn(q.ctx)
	if m == nil || q.deliver == nil {
		return
	}
	if !q.deliver(m) {
		q.log.Warn("job result dropped", "job", j.name)
	}
}
