package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pavel-fokin/dossier-files/internal/config"
	"github.com/pavel-fokin/dossier-files/internal/fs"
	"github.com/pavel-fokin/dossier-files/internal/reconcile"
)

// NewReconcileCommand returns the command that compares stored files with metadata rows.
func NewReconcileCommand() *cobra.Command {
	var opts reconcile.Options

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare stored files with metadata records",
		Long: `Reports stored files that have no metadata record and records whose file
is missing. With --remove, orphaned files older than the grace period are deleted.
Metadata records are never changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			config.SetupLogger(cfg)

			repo, err := openRepository(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize repository: %w", err)
			}
			defer repo.Close()

			storage, err := fs.NewStorage(cfg.DataDir, cfg.BaseDir)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}

			report, err := reconcile.NewSweeper(storage, repo, opts).Run(cmd.Context())
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Remove, "remove", false, "delete orphaned files")
	cmd.Flags().DurationVar(&opts.Grace, "grace", reconcile.DefaultGrace, "minimum age of an orphaned file before it is deleted")

	return cmd
}

func printReport(w io.Writer, report *reconcile.Report) {
	fmt.Fprintf(w, "checked %d files in %s\n", report.Checked, report.Duration)
	for _, p := range report.Orphaned {
		fmt.Fprintf(w, "orphaned %s\n", p)
	}
	for _, p := range report.Missing {
		fmt.Fprintf(w, "missing  %s\n", p)
	}
	for _, p := range report.Removed {
		fmt.Fprintf(w, "removed  %s\n", p)
	}
	fmt.Fprintf(w, "%d orphaned, %d missing, %d removed\n",
		len(report.Orphaned), len(report.Missing), len(report.Removed))
}
