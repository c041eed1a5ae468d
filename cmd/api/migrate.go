package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/pixmart/internal/config"
	"github.com/spec-kit/pixmart/internal/observability"
	"github.com/spec-kit/pixmart/internal/persistence"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		migrateSubcommand("up", "Apply all pending migrations", (*persistence.Migrator).Up),
		migrateSubcommand("down", "Roll back every migration", (*persistence.Migrator).Down),
		migrateSubcommand("version", "Print the applied migration version", func(m *persistence.Migrator) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Printf("version=%d dirty=%t\n", version, dirty)
			return nil
		}),
	)
	return cmd
}

func migrateSubcommand(use, short string, run func(*persistence.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			return runMigrations(cfg.Postgres.DSN, logger, run)
		},
	}
}

func runMigrations(dsn string, logger *zap.Logger, run func(*persistence.Migrator) error) (err error) {
	migrator, err := persistence.NewMigrator(dsn, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close migrator: %w", closeErr)
		}
	}()
	return run(migrator)
}
