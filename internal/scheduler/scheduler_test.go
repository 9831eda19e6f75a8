package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/internal/core/ports/mocks"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestScheduler_RunsJobsWithTimeout(t *testing.T) {
	s := New(zerolog.New(io.Discard))
	var runs atomic.Int32
	gotDeadline := make(chan bool, 1)

	require.NoError(t, s.Add(Job{
		Name:    "tick",
		Every:   time.Second,
		Timeout: 500 * time.Millisecond,
		Run: func(ctx context.Context) error {
			if runs.Add(1) == 1 {
				_, ok := ctx.Deadline()
				gotDeadline <- ok
			}
			return nil
		},
	}))
	s.Start()

	select {
	case ok := <-gotDeadline:
		assert.True(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_RejectsBadInterval(t *testing.T) {
	s := New(zerolog.New(io.Discard))
	assert.Error(t, s.Add(Job{Name: "never", Every: 0}))
}

func TestSafeRun(t *testing.T) {
	err := safeRun(context.Background(), func(context.Context) error { panic("boom") })
	assert.ErrorContains(t, err, "boom")

	err = safeRun(context.Background(), func(context.Context) error { return errors.New("nope") })
	assert.EqualError(t, err, "nope")
}

func TestReconcileJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockReconcileService(ctrl)
	job := ReconcileJob(svc, time.Minute, time.Second, zerolog.New(io.Discard))

	svc.EXPECT().Run(gomock.Any()).Return(&ports.ReconcileReport{Checked: 2, Resolved: 1}, nil)
	require.NoError(t, job.Run(context.Background()))

	svc.EXPECT().Run(gomock.Any()).Return(nil, errors.New("platform down"))
	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, "account_reconcile", job.Name)
}

func TestRenewJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	agent := mocks.NewMockAgentClient(ctrl)
	job := RenewJob(agent, 250*time.Second, 30*time.Second)

	agent.EXPECT().Renew(gomock.Any()).Return(nil)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 250*time.Second, job.Every)
}
