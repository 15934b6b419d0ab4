package queue

import (
	"context"
	"sync"
	"time"

	"github.com/imyashkale/mcphub/internal/logger"
)

// Task is a unit of background work, such as a README enrichment
type Task struct {
	Name string
	Run  func(ctx context.Context)
}

// JobQueue manages the task queue with a channel-based system
type JobQueue struct {
	jobs   chan Task
	mu     sync.RWMutex
	closed bool
}

// NewJobQueue creates a new job queue with the specified buffer size
func NewJobQueue(bufferSize int) *JobQueue {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &JobQueue{
		jobs: make(chan Task, bufferSize),
	}
}

// Enqueue adds a task without blocking. A full buffer yields ErrQueueFull.
func (jq *JobQueue) Enqueue(task Task) error {
	jq.mu.RLock()
	defer jq.mu.RUnlock()

	if jq.closed {
		logger.WithField("task", task.Name).Warn("Failed to enqueue task: queue is closed")
		return ErrQueueClosed
	}

	select {
	case jq.jobs <- task:
		logger.WithField("task", task.Name).Debug("Task enqueued")
		return nil
	default:
		logger.WithFields(map[string]interface{}{
			"task":     task.Name,
			"capacity": cap(jq.jobs),
		}).Warn("Failed to enqueue task: queue is full")
		return ErrQueueFull
	}
}

// Schedule adapts the queue to callers that only hand over a function
func (jq *JobQueue) Schedule(name string, run func(ctx context.Context)) error {
	return jq.Enqueue(Task{Name: name, Run: run})
}

// Len returns the number of queued tasks
func (jq *JobQueue) Len() int {
	return len(jq.jobs)
}

// Close closes the queue. Queued tasks are still handed to workers.
func (jq *JobQueue) Close() {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	if jq.closed {
		return
	}
	jq.closed = true
	close(jq.jobs)
}

// WorkerPool manages multiple workers processing tasks
type WorkerPool struct {
	queue   *JobQueue
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queue *JobQueue, numWorkers int) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		queue:   queue,
		workers: numWorkers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts all workers
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// worker runs tasks until the queue is closed and drained or the pool stops
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case task, ok := <-wp.queue.jobs:
			if !ok {
				logger.WithField("worker", id).Debug("Worker exiting: queue closed")
				return
			}
			wp.run(id, task)
		case <-wp.ctx.Done():
			logger.WithField("worker", id).Debug("Worker exiting: stop signal received")
			return
		}
	}
}

func (wp *WorkerPool) run(id int, task Task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(map[string]interface{}{
				"worker": id,
				"task":   task.Name,
				"panic":  r,
			}).Error("Task panicked")
		}
	}()

	task.Run(wp.ctx)

	logger.WithFields(map[string]interface{}{
		"worker":      id,
		"task":        task.Name,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Task completed")
}

// Stop cancels running tasks and stops all workers without draining
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
}

// Wait waits for all workers to finish
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
	wp.cancel()
}
