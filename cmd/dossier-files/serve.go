package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pavel-fokin/dossier-files/internal/config"
	"github.com/pavel-fokin/dossier-files/internal/files"
	"github.com/pavel-fokin/dossier-files/internal/fs"
	"github.com/pavel-fokin/dossier-files/internal/reconcile"
	"github.com/pavel-fokin/dossier-files/internal/server"
)

// NewServeCommand returns the command that runs the HTTP server.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			config.SetupLogger(cfg)
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	storage, err := fs.NewStorage(cfg.DataDir, cfg.BaseDir)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	fileService := files.NewService(files.NewPolicy(), storage, repo)

	sweeper := reconcile.NewSweeper(storage, repo, reconcile.Options{
		Remove:   true,
		Interval: cfg.ReconcileInterval,
	})
	sweeper.Start(ctx)
	defer sweeper.Stop()

	srv := server.New(cfg, fileService, storage.FileSystem(), repo)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server",
			"addr", cfg.Addr,
			"driver", cfg.DBDriver,
			"data_dir", cfg.DataDir,
			"max_body_size", humanize.IBytes(uint64(cfg.MaxBodySize)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server", "timeout", cfg.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	slog.Info("Server stopped")
	return nil
}
