package redis

import (
	"context"
	"strconv"
	"testing"

	"agent-wallet-bridge/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr)}
	client, err := NewClient(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestQueueHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr)}, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	h := NewQueueHealth(client, "awb:tasks", 2)
	assert.Equal(t, "redis", h.Name())
	assert.True(t, h.Critical())
	assert.NoError(t, h.Ping(ctx))

	require.NoError(t, client.RPush(ctx, "awb:tasks", "a", "b").Err())
	assert.NoError(t, h.Ping(ctx))

	require.NoError(t, client.RPush(ctx, "awb:tasks", "c").Err())
	assert.EqualError(t, h.Ping(ctx), "task backlog 3 exceeds 2")

	assert.NoError(t, NewQueueHealth(client, "awb:tasks", 0).Ping(ctx))

	mr.Close()
	assert.Error(t, h.Ping(ctx))
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	port := mustPort(t, mr)
	mr.Close()

	_, err := NewClient(context.Background(), config.RedisConfig{Host: "127.0.0.1", Port: port}, zerolog.Nop())
	assert.ErrorContains(t, err, "pinging redis")
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return port
}
