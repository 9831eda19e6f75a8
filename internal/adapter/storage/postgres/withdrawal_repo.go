package postgres

import (
	"context"
	"errors"
	"fmt"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

var _ ports.WithdrawalRepository = (*WithdrawalRepo)(nil)

const withdrawalColumns = `id, user_id, amount::TEXT, commission::TEXT, method_id, address, status,
	COALESCE(chat_id, 0), COALESCE(message_id, 0), created_at, completed_at`

// WithdrawalRepo implements ports.WithdrawalRepository.
type WithdrawalRepo struct {
	pool Pool
}

// NewWithdrawalRepo creates a new WithdrawalRepo.
func NewWithdrawalRepo(pool Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

// Create inserts a pending withdrawal. A second pending row for the same
// user trips uq_pending_withdrawal_user and surfaces as ports.ErrConflict.
func (r *WithdrawalRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.PendingWithdrawal) error {
	query := `INSERT INTO pending_withdrawals (id, user_id, amount, commission, method_id, address, status, created_at)
		VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		w.ID, w.UserID, w.Amount.String(), w.Commission.String(),
		w.MethodID, w.Address, string(w.Status), w.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert withdrawal: %w", ports.ErrConflict)
		}
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// GetByID fetches a withdrawal in any status.
func (r *WithdrawalRepo) GetByID(ctx context.Context, id string) (*domain.PendingWithdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM pending_withdrawals WHERE id = $1`
	return scanWithdrawal(r.pool.QueryRow(ctx, query, id))
}

// GetPendingByUser returns the user's open withdrawal, if any.
func (r *WithdrawalRepo) GetPendingByUser(ctx context.Context, userID string) (*domain.PendingWithdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM pending_withdrawals WHERE user_id = $1 AND status = 'pending'`
	return scanWithdrawal(r.pool.QueryRow(ctx, query, userID))
}

// GetPendingByMessage resolves a staff message to its still-pending withdrawal.
func (r *WithdrawalRepo) GetPendingByMessage(ctx context.Context, ref domain.MessageRef) (*domain.PendingWithdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM pending_withdrawals
		WHERE chat_id = $1 AND message_id = $2 AND status = 'pending'`
	return scanWithdrawal(r.pool.QueryRow(ctx, query, ref.ChatID, ref.MessageID))
}

// AttachMessage records where the staff message for this withdrawal lives.
func (r *WithdrawalRepo) AttachMessage(ctx context.Context, id string, ref domain.MessageRef) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE pending_withdrawals SET chat_id = $2, message_id = $3 WHERE id = $1`,
		id, ref.ChatID, ref.MessageID)
	if err != nil {
		return fmt.Errorf("attach withdrawal message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal not found: %s", id)
	}
	return nil
}

// Resolve moves a pending withdrawal to status. It returns nil, nil when the
// row is no longer pending, which is how a second resolve is detected.
func (r *WithdrawalRepo) Resolve(ctx context.Context, tx pgx.Tx, id string, status domain.RequestStatus) (*domain.PendingWithdrawal, error) {
	query := `UPDATE pending_withdrawals SET status = $2, completed_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + withdrawalColumns

	return scanWithdrawal(tx.QueryRow(ctx, query, id, string(status)))
}

func scanWithdrawal(row pgx.Row) (*domain.PendingWithdrawal, error) {
	var (
		w                  domain.PendingWithdrawal
		amount, commission string
	)
	err := row.Scan(
		&w.ID, &w.UserID, &amount, &commission, &w.MethodID, &w.Address, &w.Status,
		&w.MessageRef.ChatID, &w.MessageRef.MessageID, &w.CreatedAt, &w.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan withdrawal: %w", err)
	}
	if w.Amount, err = parseMoney(amount); err != nil {
		return nil, err
	}
	if w.Commission, err = parseMoney(commission); err != nil {
		return nil, err
	}
	return &w, nil
}
