// Package queue provides an in-memory FIFO job queue for the blit
// executor. It implements blit.JobSource.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/blit"
)

var (
	// ErrQueueFull is returned when the queue is at capacity.
	ErrQueueFull = errors.New("queue: full")

	// ErrUnknownJob is returned by Wait for a job the queue never admitted.
	ErrUnknownJob = errors.New("queue: unknown job")
)

// Option configures a Queue.
type Option func(*Queue)

// WithCapacity bounds the number of pending jobs. Zero means unbounded.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		q.capacity = n
	}
}

// WithRetireHook installs a function called for every retired job, after
// its waiters have been released. It is the deletion hook of the job.
func WithRetireHook(f func(*blit.Job)) Option {
	return func(q *Queue) {
		q.onRetire = f
	}
}

// Queue is a FIFO of jobs awaiting execution.
//
// Thread Safety:
// All methods are safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	pending  []*blit.Job
	inflight map[uuid.UUID]chan struct{}
	capacity int
	onRetire func(*blit.Job)
}

var _ blit.JobSource = (*Queue)(nil)

// New returns an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{inflight: make(map[uuid.UUID]chan struct{})}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue validates j and appends it. A job without an ID is given one.
// Invalid jobs are rejected with an error wrapping blit.ErrInvalidJob.
func (q *Queue) Enqueue(j *blit.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && len(q.pending) >= q.capacity {
		return ErrQueueFull
	}
	if _, dup := q.inflight[j.ID]; dup {
		return fmt.Errorf("%w: duplicate job id %s", blit.ErrInvalidJob, j.ID)
	}
	j.State = blit.StateReady
	q.pending = append(q.pending, j)
	q.inflight[j.ID] = make(chan struct{})
	blit.Logger().Debug("queue: job enqueued",
		slog.String("job_id", j.ID.String()),
		slog.String("op", j.Params.Op.String()),
		slog.Int("pending", len(q.pending)),
	)
	return nil
}

// Dequeue removes and returns the oldest pending job.
func (q *Queue) Dequeue() (*blit.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, false
	}
	j := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return j, true
}

// Retire releases the waiters of a finished job and runs the retire hook.
func (q *Queue) Retire(j *blit.Job) {
	q.mu.Lock()
	done, ok := q.inflight[j.ID]
	delete(q.inflight, j.ID)
	hook := q.onRetire
	q.mu.Unlock()

	if ok {
		close(done)
	}
	if hook != nil {
		hook(j)
	}
}

// Wait blocks until j is retired or ctx is done, and returns its state.
func (q *Queue) Wait(ctx context.Context, j *blit.Job) (blit.State, error) {
	q.mu.Lock()
	done, ok := q.inflight[j.ID]
	q.mu.Unlock()
	if !ok {
		if j.State.Terminal() {
			return j.State, nil
		}
		return j.State, ErrUnknownJob
	}

	select {
	case <-done:
		return j.State, nil
	case <-ctx.Done():
		return blit.StateBusy, ctx.Err()
	}
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
