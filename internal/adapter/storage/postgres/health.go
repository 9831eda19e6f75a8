package postgres

import (
	"context"
	"errors"
	"fmt"

	"agent-wallet-bridge/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

var _ ports.HealthChecker = (*SchemaHealth)(nil)

// SchemaHealth checks that PostgreSQL answers and that the schema was
// migrated cleanly. A dirty migration leaves tables half-built, so the
// ledger must not take writes.
type SchemaHealth struct {
	pool Pool
}

func NewSchemaHealth(pool Pool) *SchemaHealth {
	return &SchemaHealth{pool: pool}
}

func (h *SchemaHealth) Ping(ctx context.Context) error {
	var (
		version int64
		dirty   bool
	)
	err := h.pool.QueryRow(ctx,
		`SELECT version, dirty FROM `+migrationsTable+` LIMIT 1`,
	).Scan(&version, &dirty)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.New("schema not migrated")
	}
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("migration %d is dirty", version)
	}
	return nil
}

func (h *SchemaHealth) Name() string { return "postgresql" }

func (h *SchemaHealth) Critical() bool { return true }
