package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agent-wallet-bridge/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

var _ ports.CallbackGuard = (*CallbackGuard)(nil)

// CallbackGuard implements ports.CallbackGuard using Redis SET NX.
type CallbackGuard struct {
	client *goredis.Client
	prefix string
}

// NewCallbackGuard creates a Redis-backed guard for moderation button presses.
func NewCallbackGuard(client *goredis.Client) *CallbackGuard {
	return &CallbackGuard{
		client: client,
		prefix: "awb:cb:",
	}
}

// Acquire sets the key if absent. It returns false when the same press was
// already seen within ttl.
func (g *CallbackGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	result, err := g.client.SetArgs(ctx, g.prefix+key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis callback guard: %w", err)
	}
	return result == "OK", nil
}

// Release deletes the key. It is called when the press it guarded failed.
func (g *CallbackGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis callback guard: %w", err)
	}
	return nil
}
