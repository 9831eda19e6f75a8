package redis

import (
	"context"
	"testing"
	"time"

	"agent-wallet-bridge/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*TaskQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewTaskQueue(client, "awb:tasks", time.Second), mr
}

func TestTaskQueue_FIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first, err := domain.NewTask(domain.TaskDepositToAccount, "u1",
		domain.TransferPayload{Amount: decimal.NewFromInt(100), ExternalID: "p-1"})
	require.NoError(t, err)
	second, err := domain.NewTask(domain.TaskWithdrawFromAccount, "u1",
		domain.TransferPayload{Amount: decimal.NewFromInt(40), ExternalID: "p-1"})
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, domain.TaskDepositToAccount, got.Kind)

	var payload domain.TransferPayload
	require.NoError(t, got.Decode(&payload))
	assert.True(t, payload.Amount.Equal(decimal.NewFromInt(100)))

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)

	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTaskQueue_DequeueEmpty(t *testing.T) {
	q, _ := newTestQueue(t)

	got, err := q.Dequeue(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestTaskQueue_DequeueCorrupt(t *testing.T) {
	q, mr := newTestQueue(t)
	_, err := mr.Lpush("awb:tasks", "{not json")
	require.NoError(t, err)

	_, err = q.Dequeue(context.Background())
	assert.ErrorContains(t, err, "unmarshal task")
}

func TestTaskQueue_DequeueCancelled(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
}
