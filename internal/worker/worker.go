// Package worker drains the operation queue one task at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/internal/metrics"
	"agent-wallet-bridge/pkg/apperror"
	"agent-wallet-bridge/pkg/logger"

	"github.com/rs/zerolog"
)

// genericFailure is what the user sees when a task fails on our side and
// the handler did not already explain why.
const genericFailure = "Your request could not be completed. Please try again later."

// Worker is the single queue consumer. Tasks run sequentially, so tasks of
// one user execute in submission order.
type Worker struct {
	queue      ports.TaskQueue
	handlers   map[domain.TaskKind]ports.TaskHandler
	notifier   ports.Notifier
	errBackoff time.Duration
	log        zerolog.Logger
}

// New creates a worker dispatching to handlers.
func New(queue ports.TaskQueue, handlers map[domain.TaskKind]ports.TaskHandler, notifier ports.Notifier, log zerolog.Logger) *Worker {
	return &Worker{
		queue:      queue,
		handlers:   handlers,
		notifier:   notifier,
		errBackoff: time.Second,
		log:        logger.Component(log, "worker"),
	}
}

// Run consumes tasks until ctx is cancelled. Failed tasks are not retried.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("handlers", len(w.handlers)).Msg("Worker started")
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.log.Info().Msg("Worker stopped")
				return nil
			}
			w.log.Error().Err(err).Msg("Dequeue failed")
			if !sleep(ctx, w.errBackoff) {
				w.log.Info().Msg("Worker stopped")
				return nil
			}
			continue
		}
		if task == nil {
			continue
		}
		w.Process(ctx, task)
		if depth, err := w.queue.Len(ctx); err == nil {
			metrics.QueueDepth.Set(float64(depth))
		}
	}
}

// Process runs one task and records its outcome. It never panics.
func (w *Worker) Process(ctx context.Context, task *domain.Task) {
	start := time.Now()
	log := w.log.With().
		Str("task_id", task.ID).
		Str("kind", string(task.Kind)).
		Str("user_id", task.UserID).
		Logger()

	err := w.dispatch(ctx, task)
	outcome := outcomeOf(err)
	metrics.ObserveTask(string(task.Kind), outcome, time.Since(start))

	switch outcome {
	case metrics.OutcomeOK:
		log.Info().Dur("elapsed", time.Since(start)).Msg("Task completed")
	case metrics.OutcomeRejected:
		log.Warn().Err(err).Msg("Task rejected")
	default:
		log.Error().Err(err).Msg("Task failed")
		if !errors.Is(err, ports.ErrUserNotified) {
			if nerr := w.notifier.NotifyUser(ctx, task.UserID, genericFailure); nerr != nil {
				log.Warn().Err(nerr).Msg("Failed to notify user")
			}
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, task *domain.Task) (err error) {
	handler, ok := w.handlers[task.Kind]
	if !ok {
		return apperror.ErrUnknownTaskKind(string(task.Kind))
	}
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return handler(ctx, task)
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("task panicked: %v\n%s", p.value, p.stack)
}

// outcomeOf classifies err for metrics: precondition and platform
// rejections are expected, everything else is a failure.
func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	var p *panicError
	if errors.As(err, &p) {
		return metrics.OutcomePanic
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus < 500 {
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeFailed
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
