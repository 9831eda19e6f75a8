// Package scheduler runs the periodic background jobs: agent session
// renewal and account reconciliation.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"agent-wallet-bridge/internal/metrics"
	"agent-wallet-bridge/pkg/logger"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one scheduled unit of work.
type Job struct {
	Name    string
	Every   time.Duration
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler wraps a cron runner whose jobs each get their own timeout.
type Scheduler struct {
	cron *cron.Cron
	base context.Context
	stop context.CancelFunc
	log  zerolog.Logger
}

// New creates a stopped scheduler.
func New(log zerolog.Logger) *Scheduler {
	base, stop := context.WithCancel(context.Background())
	return &Scheduler{
		// A run still in progress when the next tick fires is skipped.
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		base: base,
		stop: stop,
		log:  logger.Component(log, "scheduler"),
	}
}

// Add registers job to run every job.Every.
func (s *Scheduler) Add(job Job) error {
	if job.Every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", job.Every), func() { s.runOnce(job) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	s.log.Info().Str("job", job.Name).Dur("every", job.Every).Msg("Job scheduled")
	return nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs, cancels running ones and waits for them to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scheduled jobs: %w", ctx.Err())
	}
}

func (s *Scheduler) runOnce(job Job) {
	ctx := s.base
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := safeRun(ctx, job.Run)
	if err != nil {
		metrics.SchedulerRuns.WithLabelValues(job.Name, metrics.OutcomeFailed).Inc()
		s.log.Error().Err(err).Str("job", job.Name).Dur("elapsed", time.Since(start)).Msg("Scheduled job failed")
		return
	}
	metrics.SchedulerRuns.WithLabelValues(job.Name, metrics.OutcomeOK).Inc()
	s.log.Debug().Str("job", job.Name).Dur("elapsed", time.Since(start)).Msg("Scheduled job finished")
}

func safeRun(ctx context.Context, run func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return run(ctx)
}
