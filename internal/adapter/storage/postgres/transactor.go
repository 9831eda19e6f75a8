package postgres

import (
	"context"

	"agent-wallet-bridge/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

var _ ports.DBTransactor = (*Transactor)(nil)

// Transactor opens database transactions for services that must write
// a balance change and its ledger entry atomically.
type Transactor struct {
	pool Pool
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin starts a new database transaction.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return t.pool.Begin(ctx)
}
