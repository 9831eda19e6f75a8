package postgres

import (
	"context"
	"fmt"

	"agent-wallet-bridge/internal/core/ports"
)

var _ ports.LoyaltyRepository = (*LoyaltyRepo)(nil)

// LoyaltyRepo implements ports.LoyaltyRepository.
type LoyaltyRepo struct {
	pool Pool
}

// NewLoyaltyRepo creates a new LoyaltyRepo.
func NewLoyaltyRepo(pool Pool) *LoyaltyRepo {
	return &LoyaltyRepo{pool: pool}
}

// AddPoints increments the user's points and returns the new total.
func (r *LoyaltyRepo) AddPoints(ctx context.Context, userID string, points int64) (int64, error) {
	query := `INSERT INTO loyalty_points (user_id, points, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET points = loyalty_points.points + EXCLUDED.points, updated_at = NOW()
		RETURNING points`

	var total int64
	if err := r.pool.QueryRow(ctx, query, userID, points).Scan(&total); err != nil {
		return 0, fmt.Errorf("add loyalty points: %w", err)
	}
	return total, nil
}
