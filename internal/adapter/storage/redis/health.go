package redis

import (
	"context"
	"fmt"

	"agent-wallet-bridge/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

var _ ports.HealthChecker = (*QueueHealth)(nil)

// QueueHealth pings Redis and, when a limit is set, fails once the pending
// task list grows past it. A stuck worker shows up here before clients
// notice missing deposits.
type QueueHealth struct {
	client     *goredis.Client
	queueKey   string
	maxBacklog int64
}

// NewQueueHealth creates the checker. maxBacklog <= 0 only pings.
func NewQueueHealth(client *goredis.Client, queueKey string, maxBacklog int64) *QueueHealth {
	return &QueueHealth{client: client, queueKey: queueKey, maxBacklog: maxBacklog}
}

func (h *QueueHealth) Ping(ctx context.Context) error {
	if err := h.client.Ping(ctx).Err(); err != nil {
		return err
	}
	if h.maxBacklog <= 0 || h.queueKey == "" {
		return nil
	}
	n, err := h.client.LLen(ctx, h.queueKey).Result()
	if err != nil {
		return fmt.Errorf("queue length: %w", err)
	}
	if n > h.maxBacklog {
		return fmt.Errorf("task backlog %d exceeds %d", n, h.maxBacklog)
	}
	return nil
}

func (h *QueueHealth) Name() string { return "redis" }

func (h *QueueHealth) Critical() bool { return true }
