package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

var _ ports.TaskQueue = (*TaskQueue)(nil)

// TaskQueue is a durable FIFO of tasks stored in a Redis list.
// Producers LPUSH, the single worker BRPOPs, so tasks leave in submission order.
type TaskQueue struct {
	client      *goredis.Client
	key         string
	pollTimeout time.Duration
}

// NewTaskQueue creates a queue on the given list key.
func NewTaskQueue(client *goredis.Client, key string, pollTimeout time.Duration) *TaskQueue {
	if pollTimeout < time.Second {
		pollTimeout = time.Second
	}
	return &TaskQueue{client: client, key: key, pollTimeout: pollTimeout}
}

// Enqueue appends a task to the tail of the queue.
func (q *TaskQueue) Enqueue(ctx context.Context, task *domain.Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("redis enqueue task: %w", err)
	}
	return nil
}

// Dequeue blocks up to the poll timeout for the next task.
func (q *TaskQueue) Dequeue(ctx context.Context) (*domain.Task, error) {
	res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("redis dequeue task: %w", err)
	}

	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("redis dequeue task: unexpected reply of %d elements", len(res))
	}

	var task domain.Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

// Len reports the number of queued tasks.
func (q *TaskQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis queue length: %w", err)
	}
	return n, nil
}
