package postgres

import (
	"context"
	"errors"
	"fmt"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var _ ports.ReferralRepository = (*ReferralRepo)(nil)

// ReferralRepo implements ports.ReferralRepository.
type ReferralRepo struct {
	pool Pool
}

// NewReferralRepo creates a new ReferralRepo.
func NewReferralRepo(pool Pool) *ReferralRepo {
	return &ReferralRepo{pool: pool}
}

// GetByUser returns who referred userID, or nil when nobody did.
func (r *ReferralRepo) GetByUser(ctx context.Context, userID string) (*domain.Referral, error) {
	ref := &domain.Referral{}
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, referrer_id FROM referrals WHERE user_id = $1`, userID,
	).Scan(&ref.UserID, &ref.ReferrerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get referral: %w", err)
	}
	return ref, nil
}

// AddEarnings moves the referrer's pending earnings by delta. There is no
// floor: clawbacks may leave the referrer in debt.
func (r *ReferralRepo) AddEarnings(ctx context.Context, referrerID string, delta decimal.Decimal) (decimal.Decimal, error) {
	query := `INSERT INTO referral_earnings (referrer_id, pending_earnings, updated_at)
		VALUES ($1, $2::NUMERIC, NOW())
		ON CONFLICT (referrer_id) DO UPDATE
		SET pending_earnings = referral_earnings.pending_earnings + EXCLUDED.pending_earnings, updated_at = NOW()
		RETURNING pending_earnings::TEXT`

	var raw string
	if err := r.pool.QueryRow(ctx, query, referrerID, delta.String()).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("add referral earnings: %w", err)
	}
	return parseMoney(raw)
}
