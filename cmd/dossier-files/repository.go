package main

import (
	"context"
	"fmt"

	"github.com/pavel-fokin/dossier-files/internal/config"
	"github.com/pavel-fokin/dossier-files/internal/files"
	"github.com/pavel-fokin/dossier-files/internal/postgres"
	"github.com/pavel-fokin/dossier-files/internal/sqlite"
)

type repository interface {
	files.Repository
	Ping(ctx context.Context) error
	Close() error
}

// openRepository migrates and opens the configured metadata store.
func openRepository(ctx context.Context, cfg *config.Config) (repository, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		repo, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.DriverSQLite:
		repo, err := sqlite.NewRepository(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}

func migrateRepository(cfg *config.Config) error {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.Migrate(cfg.DatabaseURL)
	case config.DriverSQLite:
		return sqlite.Migrate(cfg.DBPath)
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}
