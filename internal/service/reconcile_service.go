package service

import (
	"context"
	"fmt"

	"agent-wallet-bridge/internal/core/ports"

	"github.com/rs/zerolog"
)

// reconcileBatch caps how many unresolved accounts one pass considers.
const reconcileBatch = 200

// ReconcileServiceImpl links accounts whose platform player id was not
// found when the player was registered.
type ReconcileServiceImpl struct {
	accounts ports.AccountRepository
	agent    ports.AgentClient
	scan     ScanLimits
	log      zerolog.Logger
}

// NewReconcileService creates a new ReconcileServiceImpl.
func NewReconcileService(accounts ports.AccountRepository, agentClient ports.AgentClient, scan ScanLimits, log zerolog.Logger) *ReconcileServiceImpl {
	if scan.PageSize <= 0 {
		scan.PageSize = 100
	}
	if scan.MaxPages <= 0 {
		scan.MaxPages = 50
	}
	return &ReconcileServiceImpl{accounts: accounts, agent: agentClient, scan: scan, log: log}
}

// Run scans the player list once and records every id it can match.
func (s *ReconcileServiceImpl) Run(ctx context.Context) (*ports.ReconcileReport, error) {
	pending, err := s.accounts.ListUnresolved(ctx, reconcileBatch)
	if err != nil {
		return nil, fmt.Errorf("list unresolved accounts: %w", err)
	}
	report := &ports.ReconcileReport{Checked: len(pending)}
	if len(pending) == 0 {
		return report, nil
	}

	byUsername := make(map[string]string, len(pending))
	for _, a := range pending {
		byUsername[a.Username] = a.UserID
	}

	found := make(map[string]string)
	err = scanPlayers(ctx, s.agent, s.scan.PageSize, s.scan.MaxPages, func(p ports.Player) bool {
		if _, ok := byUsername[p.Username]; ok {
			found[p.Username] = p.ID
		}
		return len(found) < len(byUsername)
	})
	if err != nil {
		return report, fmt.Errorf("scan players: %w", err)
	}

	for username, externalID := range found {
		userID := byUsername[username]
		if err := s.accounts.SetExternalID(ctx, userID, externalID); err != nil {
			s.log.Error().Err(err).Str("user_id", userID).Msg("Failed to store player id")
			continue
		}
		report.Resolved++
		s.log.Info().Str("user_id", userID).Str("username", username).Str("external_id", externalID).Msg("Account player id resolved")
	}
	return report, nil
}
