package service

import (
	"context"

	"agent-wallet-bridge/internal/core/ports"
)

// scanPlayers walks the agent's player list page by page until visit
// returns false, a short page ends the list, or maxPages is reached.
func scanPlayers(ctx context.Context, agent ports.AgentClient, pageSize, maxPages int, visit func(ports.Player) bool) error {
	for page := 1; page <= maxPages; page++ {
		res, err := agent.ListPlayers(ctx, page, pageSize)
		if err != nil {
			return err
		}
		for _, p := range res.Players {
			if !visit(p) {
				return nil
			}
		}
		if len(res.Players) < pageSize {
			return nil
		}
		if res.Total > 0 && page*pageSize >= res.Total {
			return nil
		}
	}
	return nil
}
