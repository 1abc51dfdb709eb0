package push

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned by a bounded queue that cannot take more jobs.
	ErrQueueFull = errors.New("push: queue is full")
	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = errors.New("push: queue is closed")
)

// Delivery is a job handed to a worker. Ack must be called once the job
// reaches a terminal state.
type Delivery struct {
	Job Job
	ack func() error
}

// Ack confirms the job so the queue does not redeliver it.
func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Queue carries push jobs from the dispatcher to the pipeline workers.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Consume streams jobs until ctx is done. release frees the consumer and
	// must be called only after every handed-out Delivery has been acked.
	Consume(ctx context.Context) (deliveries <-chan Delivery, release func() error, err error)
	Close() error
}

// MemoryQueue is an in-process bounded queue. Enqueue never blocks.
type MemoryQueue struct {
	mu     sync.RWMutex
	jobs   chan Job
	closed bool
}

// NewMemoryQueue creates a queue holding at most size jobs
func NewMemoryQueue(size int) *MemoryQueue {
	if size < 1 {
		size = 1
	}
	return &MemoryQueue{jobs: make(chan Job, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume streams queued jobs until ctx is done or the queue is closed and drained.
func (q *MemoryQueue) Consume(ctx context.Context) (<-chan Delivery, func() error, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-q.jobs:
				if !ok {
					return
				}
				select {
				case out <- Delivery{Job: job}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, func() error { return nil }, nil
}

// Len reports how many jobs are waiting.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
