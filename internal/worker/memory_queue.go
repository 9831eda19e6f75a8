package worker

import (
	"context"
	"sync"
	"time"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
)

var _ ports.TaskQueue = (*MemoryQueue)(nil)

// MemoryQueue is an in-process FIFO used when Redis is not configured.
// Tasks do not survive a restart.
type MemoryQueue struct {
	mu          sync.Mutex
	tasks       []*domain.Task
	notify      chan struct{}
	pollTimeout time.Duration
}

// NewMemoryQueue creates an empty queue. Dequeue waits up to pollTimeout.
func NewMemoryQueue(pollTimeout time.Duration) *MemoryQueue {
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	return &MemoryQueue{notify: make(chan struct{}, 1), pollTimeout: pollTimeout}
}

// Enqueue appends task to the tail.
func (q *MemoryQueue) Enqueue(_ context.Context, task *domain.Task) error {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue pops the head, waiting for one to arrive. It returns nil, nil
// when the poll window passes with nothing queued.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*domain.Task, error) {
	timer := time.NewTimer(q.pollTimeout)
	defer timer.Stop()

	for {
		if task := q.pop(); task != nil {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return q.pop(), nil
		case <-q.notify:
		}
	}
}

// Len returns the number of queued tasks.
func (q *MemoryQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.tasks)), nil
}

func (q *MemoryQueue) pop() *domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return task
}
