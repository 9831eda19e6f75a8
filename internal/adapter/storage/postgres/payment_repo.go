package postgres

import (
	"context"
	"errors"
	"fmt"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

var _ ports.PaymentRepository = (*PaymentRepo)(nil)

const paymentColumns = `id, user_id, amount::TEXT, method_id, external_ref, status,
	COALESCE(chat_id, 0), COALESCE(message_id, 0), created_at, resolved_at`

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Create inserts a pending payment request.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.PaymentRequest) error {
	query := `INSERT INTO payment_requests (id, user_id, amount, method_id, external_ref, status, created_at)
		VALUES ($1, $2, $3::NUMERIC, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.UserID, p.Amount.String(), p.MethodID, p.ExternalRef, string(p.Status), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment request: %w", err)
	}
	return nil
}

func (r *PaymentRepo) GetByID(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE id = $1`
	return scanPayment(r.pool.QueryRow(ctx, query, id))
}

func (r *PaymentRepo) GetPendingByMessage(ctx context.Context, ref domain.MessageRef) (*domain.PaymentRequest, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests
		WHERE chat_id = $1 AND message_id = $2 AND status = 'pending'`
	return scanPayment(r.pool.QueryRow(ctx, query, ref.ChatID, ref.MessageID))
}

func (r *PaymentRepo) AttachMessage(ctx context.Context, id string, ref domain.MessageRef) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payment_requests SET chat_id = $2, message_id = $3 WHERE id = $1`,
		id, ref.ChatID, ref.MessageID)
	if err != nil {
		return fmt.Errorf("attach payment message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment request not found: %s", id)
	}
	return nil
}

// Resolve is a compare-and-set from pending; nil, nil means already resolved.
func (r *PaymentRepo) Resolve(ctx context.Context, tx pgx.Tx, id string, status domain.RequestStatus) (*domain.PaymentRequest, error) {
	query := `UPDATE payment_requests SET status = $2, resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + paymentColumns

	return scanPayment(tx.QueryRow(ctx, query, id, string(status)))
}

func scanPayment(row pgx.Row) (*domain.PaymentRequest, error) {
	var (
		p      domain.PaymentRequest
		amount string
	)
	err := row.Scan(
		&p.ID, &p.UserID, &amount, &p.MethodID, &p.ExternalRef, &p.Status,
		&p.MessageRef.ChatID, &p.MessageRef.MessageID, &p.CreatedAt, &p.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment request: %w", err)
	}
	if p.Amount, err = parseMoney(amount); err != nil {
		return nil, err
	}
	return &p, nil
}
