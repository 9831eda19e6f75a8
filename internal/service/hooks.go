package service

import (
	"context"
	"fmt"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ReferralHookImpl moves the referrer's commission with each account transfer.
type ReferralHookImpl struct {
	repo    ports.ReferralRepository
	percent decimal.Decimal
	log     zerolog.Logger
}

// NewReferralHook creates a hook paying percent of every transfer to the referrer.
func NewReferralHook(repo ports.ReferralRepository, percent decimal.Decimal, log zerolog.Logger) *ReferralHookImpl {
	return &ReferralHookImpl{repo: repo, percent: percent, log: log}
}

// CreditCommission adds the referrer's share of base. Users without a referrer are skipped.
func (h *ReferralHookImpl) CreditCommission(ctx context.Context, userID string, base decimal.Decimal) error {
	return h.move(ctx, userID, domain.PercentOf(base, h.percent))
}

// DeductCommission takes the share back. Earnings may go negative.
func (h *ReferralHookImpl) DeductCommission(ctx context.Context, userID string, base decimal.Decimal) error {
	return h.move(ctx, userID, domain.PercentOf(base, h.percent).Neg())
}

func (h *ReferralHookImpl) move(ctx context.Context, userID string, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	ref, err := h.repo.GetByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get referral: %w", err)
	}
	if ref == nil || ref.ReferrerID == "" {
		return nil
	}

	total, err := h.repo.AddEarnings(ctx, ref.ReferrerID, delta)
	if err != nil {
		return fmt.Errorf("move referral earnings: %w", err)
	}

	h.log.Debug().
		Str("user_id", userID).
		Str("referrer_id", ref.ReferrerID).
		Str("delta", delta.String()).
		Str("pending_earnings", total.String()).
		Msg("Referral earnings moved")
	return nil
}

// LoyaltyHookImpl awards loyalty points for account deposits.
type LoyaltyHookImpl struct {
	repo ports.LoyaltyRepository
	unit decimal.Decimal
}

// NewLoyaltyHook creates a hook awarding one point per unit deposited.
func NewLoyaltyHook(repo ports.LoyaltyRepository, unit decimal.Decimal) *LoyaltyHookImpl {
	return &LoyaltyHookImpl{repo: repo, unit: unit}
}

// AwardPoints adds floor(amount / unit) points.
func (h *LoyaltyHookImpl) AwardPoints(ctx context.Context, userID string, amount decimal.Decimal) error {
	points := domain.LoyaltyPointsFor(amount, h.unit)
	if points == 0 {
		return nil
	}
	if _, err := h.repo.AddPoints(ctx, userID, points); err != nil {
		return fmt.Errorf("award loyalty points: %w", err)
	}
	return nil
}
