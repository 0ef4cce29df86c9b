package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrQueueFull is returned when the task queue cannot accept more work
	ErrQueueFull = errors.New("worker queue is full")

	// ErrPoolStopped is returned when enqueueing after shutdown began
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Task is one unit of work dispatched to the pool.
type Task struct {
	JobID string
	Run   func(ctx context.Context)
}

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Logger      *slog.Logger
	Concurrency int
	QueueSize   int
}

// Pool bounds how many worker processes run at once. Submissions enqueue
// tasks; a fixed set of goroutines drains the queue. This is the
// backpressure layer in front of the per-job external process.
type Pool struct {
	logger      *slog.Logger
	concurrency int
	tasksChan   chan Task
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewPool creates a pool. Concurrency and queue size fall back to sane
// minimums when unset.
func NewPool(cfg *PoolConfig) *Pool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = concurrency
	}

	return &Pool{
		logger:      cfg.Logger,
		concurrency: concurrency,
		tasksChan:   make(chan Task, queueSize),
		stopChan:    make(chan struct{}),
	}
}

// Start spawns the worker goroutines. They run until Stop is called or
// the context is canceled.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool",
		slog.Int("concurrency", p.concurrency),
		slog.Int("queue_size", cap(p.tasksChan)),
	)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}
}

// Enqueue hands a task to the pool without blocking the caller. A full
// queue or a stopped pool is reported as an error so the submission
// handler can reject the request.
//
// The stopped check and the send happen under the pool lock, ordered
// against Stop: an accepted task is in the queue before the stop signal
// fires, so the shutdown drain always sees it.
func (p *Pool) Enqueue(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.tasksChan <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop prevents new tasks from being enqueued and waits for in-flight
// tasks to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("Stopping worker pool...")
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.stopChan)
	})
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *Pool) workerLoop(ctx context.Context, workerNum int) {
	defer p.wg.Done()

	workerName := fmt.Sprintf("worker-%d", workerNum)
	p.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-p.stopChan:
			// Drain what is already queued before exiting so accepted
			// submissions still complete on shutdown.
			for {
				select {
				case task := <-p.tasksChan:
					p.runTask(ctx, workerName, task)
				default:
					return
				}
			}

		case <-ctx.Done():
			p.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case task := <-p.tasksChan:
			p.runTask(ctx, workerName, task)
		}
	}
}

func (p *Pool) runTask(ctx context.Context, workerName string, task Task) {
	p.logger.Debug("Worker picked up job",
		slog.String("worker_name", workerName),
		slog.String("job_id", task.JobID),
	)
	task.Run(ctx)
}
