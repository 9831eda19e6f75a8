package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitStore_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRateLimitStore(client)
	clock := time.Unix(1_700_000_040, 0)
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	t.Run("allows requests within limit", func(t *testing.T) {
		for i := int64(1); i <= 3; i++ {
			result, err := store.Allow(ctx, "ui-bot:tasks", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, result.Allowed, "request %d should be allowed", i)
			assert.Equal(t, int64(3), result.Limit)
			assert.Equal(t, 3-i, result.Remaining)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		result, err := store.Allow(ctx, "ui-bot:tasks", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, int64(0), result.Remaining)
	})

	t.Run("different keys are independent", func(t *testing.T) {
		result, err := store.Allow(ctx, "admin:tasks", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, int64(4), result.Remaining)
	})

	t.Run("next window allows again", func(t *testing.T) {
		key := "ui-bot:moderation"
		_, err := store.Allow(ctx, key, 1, time.Minute)
		require.NoError(t, err)

		result, err := store.Allow(ctx, key, 1, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Allowed)

		clock = clock.Add(time.Minute)

		result, err = store.Allow(ctx, key, 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})

	t.Run("reset is the next window boundary", func(t *testing.T) {
		result, err := store.Allow(ctx, "ui-bot:wallets", 10, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(0), result.ResetAt%60)
		assert.Greater(t, result.ResetAt, clock.Unix())
	})

	t.Run("keys expire", func(t *testing.T) {
		_, err := store.Allow(ctx, "ui-bot:expiring", 10, time.Minute)
		require.NoError(t, err)
		keys := mr.Keys()
		require.NotEmpty(t, keys)
		mr.FastForward(62 * time.Second)
		assert.Empty(t, mr.Keys())
	})
}
