package postgres

import (
	"context"
	"fmt"
	"time"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var _ ports.TransactionRepository = (*TransactionRepo)(nil)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create appends a ledger entry. It only runs inside the caller's tx.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, owner_id, kind, amount, description, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC, $5, $6)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.OwnerID, string(t.Kind), t.Amount.String(), t.Description, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// ListByOwner returns the newest entries first.
func (r *TransactionRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Transaction, error) {
	query := `SELECT id, owner_id, kind, amount::TEXT, description, created_at
		FROM transactions WHERE owner_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var (
			t   domain.Transaction
			raw string
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Kind, &raw, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		if t.Amount, err = parseMoney(raw); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}

// SumSince totals signed amounts of the given kinds created strictly after since.
func (r *TransactionRepo) SumSince(ctx context.Context, ownerID string, kinds []domain.TransactionKind, since time.Time) (decimal.Decimal, error) {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}

	query := `SELECT COALESCE(SUM(amount), 0)::TEXT FROM transactions
		WHERE owner_id = $1 AND kind = ANY($2) AND created_at > $3`

	var raw string
	if err := r.pool.QueryRow(ctx, query, ownerID, names, since).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("sum transactions: %w", err)
	}
	return parseMoney(raw)
}
