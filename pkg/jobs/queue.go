package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// JobTypeLoadRun identifies a queued load-simulation run.
const JobTypeLoadRun = "load_run"

var (
	// ErrNotStarted is returned by Enqueue before Start.
	ErrNotStarted = errors.New("queue not started")
	// ErrFull is returned when the buffer has no free slot.
	ErrFull = errors.New("queue full")
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  any
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour. MaxRetries of zero disables
// redelivery; load runs are not idempotent and should not be replayed.
// Retries back off linearly: attempt n waits n*RetryDelay.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Stats is a point-in-time view of queue activity.
type Stats struct {
	Workers   int   `json:"workers"`
	Pending   int   `json:"pending"`
	Capacity  int   `json:"capacity"`
	Active    int64 `json:"active"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
	Rejected  int64 `json:"rejected"`
}

// Queue is a bounded in-memory dispatcher. Jobs are handled by a fixed pool
// of goroutines; a panicking handler counts as a failed job.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.Logger

	jobs chan Job

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup

	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	rejected  atomic.Int64
}

// NewQueue builds a queue with the provided handler. Start must be called
// before jobs are accepted.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With(zap.String("queue", name)),
		jobs:    make(chan Job, cfg.BufferSize),
	}
}

// Start launches the workers. Later calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(q.cfg.Workers)
	for i := 1; i <= q.cfg.Workers; i++ {
		go q.consume(i)
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "workers", q.cfg.Workers, "buffer", q.cfg.BufferSize)
}

// Stop cancels the workers and waits for in-flight jobs to return. Buffered
// jobs that were never picked up are dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Sugar().Infow("queue stopped", "dropped", len(q.jobs), "processed", q.processed.Load())
}

// Pending reports how many jobs are buffered awaiting a worker.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Stats returns the current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Workers:   q.cfg.Workers,
		Pending:   len(q.jobs),
		Capacity:  q.cfg.BufferSize,
		Active:    q.active.Load(),
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Retried:   q.retried.Load(),
		Rejected:  q.rejected.Load(),
	}
}

// Ready fails until Start has run, after Stop, or while the buffer is full.
// Its signature matches a readiness probe.
func (q *Queue) Ready(context.Context) error {
	ctx, started := q.state()
	if !started {
		return fmt.Errorf("%s: %w", q.name, ErrNotStarted)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s stopped: %w", q.name, ctx.Err())
	}
	if len(q.jobs) >= q.cfg.BufferSize {
		return fmt.Errorf("%s: %w", q.name, ErrFull)
	}
	return nil
}

// Enqueue offers a job without blocking. A full buffer yields ErrFull so the
// caller can surface back-pressure.
func (q *Queue) Enqueue(job Job) error {
	ctx, started := q.state()
	if !started {
		return fmt.Errorf("%s: %w", q.name, ErrNotStarted)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	default:
		q.rejected.Add(1)
		return fmt.Errorf("%s (%d buffered): %w", q.name, q.cfg.BufferSize, ErrFull)
	}
}

func (q *Queue) state() (context.Context, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ctx, q.started
}

func (q *Queue) consume(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.active.Add(1)
			started := time.Now()
			err := q.invoke(job)
			q.active.Add(-1)

			if err == nil {
				q.processed.Add(1)
				q.logger.Debug("job done",
					zap.Int("worker", workerID),
					zap.String("job_id", job.ID),
					zap.Duration("took", time.Since(started)))
				continue
			}
			q.retry(job, err)
		}
	}
}

func (q *Queue) invoke(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return q.handler(q.ctx, job)
}

func (q *Queue) retry(job Job, cause error) {
	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		q.failed.Add(1)
		q.logger.Error("job failed",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Int("attempts", job.Attempt),
			zap.Error(cause))
		return
	}

	q.retried.Add(1)
	delay := time.Duration(job.Attempt) * q.cfg.RetryDelay
	q.logger.Warn("job failed, retrying",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
		zap.Duration("delay", delay),
		zap.Error(cause))

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			if err := q.Enqueue(job); err != nil {
				q.failed.Add(1)
				q.logger.Error("requeue failed", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}()
}
