package main

import (
	"agent-wallet-bridge/internal/adapter/storage/postgres"
	"agent-wallet-bridge/migrations"

	"github.com/spf13/cobra"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *postgres.Migrator) error { return m.Up() })
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *postgres.Migrator) error { return m.Down(migrateSteps) })
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}

func withMigrator(fn func(m *postgres.Migrator) error) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	m, err := postgres.NewMigrator(migrations.FS, cfg.Database.DSN(), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn().Err(err).Msg("close migrator")
		}
	}()

	return fn(m)
}
