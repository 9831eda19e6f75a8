package postgres

import (
	"context"
	"errors"
	"fmt"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

var _ ports.AccountRepository = (*AccountRepo)(nil)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Create stores a new account link. A duplicate user or username is ports.ErrConflict.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (user_id, username, password_enc, external_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		a.UserID, a.Username, a.PasswordEnc, a.ExternalID, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert account: %w", ports.ErrConflict)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepo) GetByUserID(ctx context.Context, userID string) (*domain.Account, error) {
	query := `SELECT user_id, username, password_enc, external_id, created_at, updated_at
		FROM accounts WHERE user_id = $1`

	a := &domain.Account{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&a.UserID, &a.Username, &a.PasswordEnc, &a.ExternalID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// SetExternalID records the resolved platform player id.
func (r *AccountRepo) SetExternalID(ctx context.Context, userID, externalID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET external_id = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, externalID)
	if err != nil {
		return fmt.Errorf("set external id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account not found: %s", userID)
	}
	return nil
}

// ListUnresolved returns the oldest accounts still missing a player id.
func (r *AccountRepo) ListUnresolved(ctx context.Context, limit int) ([]domain.Account, error) {
	query := `SELECT user_id, username, password_enc, external_id, created_at, updated_at
		FROM accounts WHERE external_id IS NULL ORDER BY created_at LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list unresolved accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.UserID, &a.Username, &a.PasswordEnc, &a.ExternalID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}
	return accounts, nil
}
