package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// NewRootCommand returns the root command with all subcommands attached
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dossier-files",
		Short: "Identity document intake service.",
		Long: `dossier-files stores passport, utility bill and other identity documents,
keeps their metadata in SQLite or PostgreSQL and serves them over HTTP.
Configuration is read from DOSSIER_* environment variables and an optional .env file.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewReconcileCommand())

	return rootCmd
}
