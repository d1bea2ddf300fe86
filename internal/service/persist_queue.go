package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PersistTask is one durable-store write run off the request path
type PersistTask struct {
	Name      string
	SessionID string
	Run       func(ctx context.Context) error
}

// RetryConfig bounds retries of a failed persistence task
type RetryConfig struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts int

	// BackoffBase is the wait before the second attempt, doubled after each failure.
	BackoffBase time.Duration

	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the engine's default persistence retry policy
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BackoffBase: 200 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

// ErrQueueClosed is returned by Submit after Close
var ErrQueueClosed = errors.New("persist queue closed")

// PersistQueue runs persistence tasks on a fixed worker pool with bounded
// retries. Submitting never blocks the caller: a full queue drops the task.
type PersistQueue struct {
	tasks   chan PersistTask
	workers int
	retry   RetryConfig
	logger  *slog.Logger
	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPersistQueue creates a queue. Call Start to launch the workers.
func NewPersistQueue(workers, size int, retry RetryConfig, logger *slog.Logger, metrics *Metrics) *PersistQueue {
	if workers <= 0 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PersistQueue{
		tasks:   make(chan PersistTask, size),
		workers: workers,
		retry:   retry,
		logger:  logger,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers
func (q *PersistQueue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Submit enqueues a task without blocking
func (q *PersistQueue) Submit(task PersistTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.metrics.PersistDropped()
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		q.logger.Error("persist queue full, dropping task", "task", task.Name, "session_id", task.SessionID)
		q.metrics.PersistDropped()
		return errors.New("persist queue full")
	}
}

// Close stops accepting tasks and waits for queued ones to finish. When ctx
// expires first, in-flight retries are cancelled.
func (q *PersistQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *PersistQueue) worker() {
	defer q.wg.Done()
	for task := range q.tasks {
		q.run(task)
	}
}

func (q *PersistQueue) run(task PersistTask) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("persist task panicked", "task", task.Name, "session_id", task.SessionID, "panic", r)
			q.metrics.PersistFailed()
		}
	}()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = q.retry.BackoffBase
	policy.MaxInterval = q.retry.MaxBackoff
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0

	attempts := 0
	op := func() error {
		attempts++
		return task.Run(q.ctx)
	}
	notify := func(err error, wait time.Duration) {
		q.logger.Warn("persist task failed, retrying", "task", task.Name, "session_id", task.SessionID,
			"attempt", attempts, "wait", wait, "error", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(q.retry.MaxAttempts-1)), q.ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		q.logger.Error("persist task gave up", "task", task.Name, "session_id", task.SessionID,
			"attempts", attempts, "error", err)
		q.metrics.PersistFailed()
	}
}
