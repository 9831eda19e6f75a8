package postgres

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers the pgx5:// driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

// migrationsTable is the version table the pgx5 migrate driver maintains.
const migrationsTable = "schema_migrations"

// Migrator applies the embedded schema.
type Migrator struct {
	m   *migrate.Migrate
	log zerolog.Logger
}

// NewMigrator builds a migrator reading SQL files from fsys and connecting with dsn.
func NewMigrator(fsys fs.FS, dsn string, log zerolog.Logger) (*Migrator, error) {
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("iofs source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, pgx5URL(dsn))
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}

	return &Migrator{m: m, log: log}, nil
}

// Up applies all pending migrations. No change is not an error.
func (g *Migrator) Up() error {
	if err := g.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	g.logVersion("migrations applied")
	return nil
}

// Down rolls back steps migrations.
func (g *Migrator) Down(steps int) error {
	if steps < 1 {
		steps = 1
	}
	if err := g.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	g.logVersion("migrations rolled back")
	return nil
}

// Close releases the source and database handles.
func (g *Migrator) Close() error {
	srcErr, dbErr := g.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (g *Migrator) logVersion(msg string) {
	version, dirty, err := g.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		g.log.Warn().Err(err).Msg("read migration version")
		return
	}
	g.log.Info().Uint("version", version).Bool("dirty", dirty).Msg(msg)
}

// pgx5URL rewrites a postgres:// DSN for the pgx/v5 migrate driver.
func pgx5URL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
