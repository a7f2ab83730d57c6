package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/starkconform/starkconform/internal/config"
	"github.com/starkconform/starkconform/internal/sink"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply ClickHouse sink schema migrations",
	Long: `Creates the results database if needed and applies any pending schema
migrations for the ClickHouse results sink.

Requires CLICKHOUSE_HOST to be set.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(configErrorExitCode)
		}

		if !cfg.SinkEnabled() {
			fmt.Fprintln(os.Stderr, "configuration error: CLICKHOUSE_HOST is not set")
			os.Exit(configErrorExitCode)
		}

		s, err := sink.New(Logger, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}

		defer func() {
			_ = s.Stop()
		}()

		if err := s.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to prepare database: %w", err)
		}

		if err := sink.Migrate(Logger, cfg); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		fmt.Println("✅ Sink migrations applied successfully")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
