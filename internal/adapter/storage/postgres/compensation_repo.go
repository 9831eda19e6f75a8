package postgres

import (
	"context"
	"errors"
	"fmt"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

var _ ports.CompensationRepository = (*CompensationRepo)(nil)

const compensationColumns = `id, user_id, amount::TEXT, net_loss::TEXT, status,
	COALESCE(chat_id, 0), COALESCE(message_id, 0), created_at, resolved_at`

// CompensationRepo implements ports.CompensationRepository.
type CompensationRepo struct {
	pool Pool
}

// NewCompensationRepo creates a new CompensationRepo.
func NewCompensationRepo(pool Pool) *CompensationRepo {
	return &CompensationRepo{pool: pool}
}

// Create inserts a pending compensation request; a second pending row per
// user is rejected by uq_pending_compensation_user.
func (r *CompensationRepo) Create(ctx context.Context, tx pgx.Tx, c *domain.CompensationRequest) error {
	query := `INSERT INTO compensation_requests (id, user_id, amount, net_loss, status, created_at)
		VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6)`

	_, err := tx.Exec(ctx, query,
		c.ID, c.UserID, c.Amount.String(), c.NetLoss.String(), string(c.Status), c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert compensation: %w", ports.ErrConflict)
		}
		return fmt.Errorf("insert compensation: %w", err)
	}
	return nil
}

func (r *CompensationRepo) GetByID(ctx context.Context, id string) (*domain.CompensationRequest, error) {
	query := `SELECT ` + compensationColumns + ` FROM compensation_requests WHERE id = $1`
	return scanCompensation(r.pool.QueryRow(ctx, query, id))
}

func (r *CompensationRepo) GetPendingByUser(ctx context.Context, userID string) (*domain.CompensationRequest, error) {
	query := `SELECT ` + compensationColumns + ` FROM compensation_requests WHERE user_id = $1 AND status = 'pending'`
	return scanCompensation(r.pool.QueryRow(ctx, query, userID))
}

func (r *CompensationRepo) GetPendingByMessage(ctx context.Context, ref domain.MessageRef) (*domain.CompensationRequest, error) {
	query := `SELECT ` + compensationColumns + ` FROM compensation_requests
		WHERE chat_id = $1 AND message_id = $2 AND status = 'pending'`
	return scanCompensation(r.pool.QueryRow(ctx, query, ref.ChatID, ref.MessageID))
}

func (r *CompensationRepo) AttachMessage(ctx context.Context, id string, ref domain.MessageRef) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE compensation_requests SET chat_id = $2, message_id = $3 WHERE id = $1`,
		id, ref.ChatID, ref.MessageID)
	if err != nil {
		return fmt.Errorf("attach compensation message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("compensation request not found: %s", id)
	}
	return nil
}

// Resolve is a compare-and-set from pending; nil, nil means already resolved.
func (r *CompensationRepo) Resolve(ctx context.Context, tx pgx.Tx, id string, status domain.RequestStatus) (*domain.CompensationRequest, error) {
	query := `UPDATE compensation_requests SET status = $2, resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + compensationColumns

	return scanCompensation(tx.QueryRow(ctx, query, id, string(status)))
}

// GetTracking returns the last compensated loss, or nil if the user was never compensated.
func (r *CompensationRepo) GetTracking(ctx context.Context, userID string) (*domain.CompensationTracking, error) {
	query := `SELECT user_id, last_compensation_loss::TEXT, last_compensation_date
		FROM compensation_tracking WHERE user_id = $1`

	var (
		t    domain.CompensationTracking
		loss string
	)
	err := r.pool.QueryRow(ctx, query, userID).Scan(&t.UserID, &loss, &t.LastCompensationDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get compensation tracking: %w", err)
	}
	if t.LastCompensationLoss, err = parseMoney(loss); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpsertTracking is written together with the request row so the same
// losses cannot be claimed by a concurrent second request.
func (r *CompensationRepo) UpsertTracking(ctx context.Context, tx pgx.Tx, t *domain.CompensationTracking) error {
	query := `INSERT INTO compensation_tracking (user_id, last_compensation_loss, last_compensation_date)
		VALUES ($1, $2::NUMERIC, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET last_compensation_loss = EXCLUDED.last_compensation_loss,
		    last_compensation_date = EXCLUDED.last_compensation_date`

	if _, err := tx.Exec(ctx, query, t.UserID, t.LastCompensationLoss.String(), t.LastCompensationDate); err != nil {
		return fmt.Errorf("upsert compensation tracking: %w", err)
	}
	return nil
}

func scanCompensation(row pgx.Row) (*domain.CompensationRequest, error) {
	var (
		c            domain.CompensationRequest
		amount, loss string
	)
	err := row.Scan(
		&c.ID, &c.UserID, &amount, &loss, &c.Status,
		&c.MessageRef.ChatID, &c.MessageRef.MessageID, &c.CreatedAt, &c.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan compensation request: %w", err)
	}
	if c.Amount, err = parseMoney(amount); err != nil {
		return nil, err
	}
	if c.NetLoss, err = parseMoney(loss); err != nil {
		return nil, err
	}
	return &c, nil
}
