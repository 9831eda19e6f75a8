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

var _ ports.WalletRepository = (*WalletRepo)(nil)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Get returns the wallet for ownerID, inserting a zero balance on first access.
func (r *WalletRepo) Get(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO wallets (owner_id, balance, updated_at) VALUES ($1, 0, NOW())
		ON CONFLICT (owner_id) DO NOTHING`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}

	var raw string
	w := &domain.Wallet{OwnerID: ownerID}
	err = r.pool.QueryRow(ctx,
		`SELECT balance::TEXT, updated_at FROM wallets WHERE owner_id = $1`, ownerID,
	).Scan(&raw, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	if w.Balance, err = parseMoney(raw); err != nil {
		return nil, err
	}
	return w, nil
}

// Adjust applies delta with a guarded upsert. The WHERE clause on the
// conflict branch rejects a result below zero, so concurrent writers can
// neither lose an update nor overdraw; a rejected debit yields applied=false.
func (r *WalletRepo) Adjust(ctx context.Context, tx pgx.Tx, ownerID string, delta decimal.Decimal) (decimal.Decimal, bool, error) {
	query := `INSERT INTO wallets (owner_id, balance, updated_at) VALUES ($1, $2::NUMERIC, NOW())
		ON CONFLICT (owner_id) DO UPDATE
		SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
		WHERE wallets.balance + EXCLUDED.balance >= 0
		RETURNING balance::TEXT`

	var raw string
	err := tx.QueryRow(ctx, query, ownerID, delta.String()).Scan(&raw)
	if err != nil {
		// no row: the guard rejected the update; check violation: a new wallet would start negative
		if errors.Is(err, pgx.ErrNoRows) || isCheckViolation(err) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("adjust wallet: %w", err)
	}

	balance, err := parseMoney(raw)
	if err != nil {
		return decimal.Zero, false, err
	}
	return balance, true, nil
}
