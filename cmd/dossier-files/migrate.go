package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pavel-fokin/dossier-files/internal/config"
)

// NewMigrateCommand returns the command that applies metadata schema migrations.
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			config.SetupLogger(cfg)

			if err := migrateRepository(cfg); err != nil {
				return err
			}
			slog.Info("Migrations applied", "driver", cfg.DBDriver)
			return nil
		},
	}
}
