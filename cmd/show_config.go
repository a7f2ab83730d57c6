package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/starkconform/starkconform/internal/config"
)

var showConfigCmd = &cobra.Command{
	Use:   "show-config",
	Short: "Display current environment configuration",
	Long:  `Shows the current configuration loaded from environment variables and .env file.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(configErrorExitCode)
		}

		fmt.Println(cfg.String())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(showConfigCmd)
}
