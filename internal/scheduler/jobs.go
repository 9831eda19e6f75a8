package scheduler

import (
	"context"
	"time"

	"agent-wallet-bridge/internal/core/ports"

	"github.com/rs/zerolog"
)

// RenewJob keeps the agent session warm so request paths rarely log in.
func RenewJob(agent ports.AgentClient, every, timeout time.Duration) Job {
	return Job{
		Name:    "agent_renew",
		Every:   every,
		Timeout: timeout,
		Run:     agent.Renew,
	}
}

// ReconcileJob fills in platform player ids that were missing at creation.
func ReconcileJob(svc ports.ReconcileService, every, timeout time.Duration, log zerolog.Logger) Job {
	return Job{
		Name:    "account_reconcile",
		Every:   every,
		Timeout: timeout,
		Run: func(ctx context.Context) error {
			report, err := svc.Run(ctx)
			if err != nil {
				return err
			}
			if report.Checked > 0 {
				log.Info().
					Int("checked", report.Checked).
					Int("resolved", report.Resolved).
					Int("unresolved", report.Checked-report.Resolved).
					Msg("Account reconciliation finished")
			}
			return nil
		},
	}
}
