package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/starkconform/starkconform/internal/config"
	"github.com/starkconform/starkconform/internal/interactive"
	"github.com/starkconform/starkconform/internal/suite"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Launch interactive mode",
	Long:  `Launches the interactive terminal menu for Starkconform.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return RunInteractive()
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

// RunInteractive shows the main menu loop.
func RunInteractive() error {
	menu := interactive.NewMenu(
		"Starkconform - Interactive Mode\n===============================",
		[]interactive.MenuOption{
			{
				Name:        "Show Config",
				Description: "Display current environment configuration",
				Action: func() error {
					cfg, err := config.Load()
					if err != nil {
						fmt.Printf("\n❌ Error: %v\n", err)
					} else {
						fmt.Println(cfg.String())
					}

					interactive.PauseForEnter()

					return nil
				},
			},
			{
				Name:        "Run Suites",
				Description: "Pick conformance suites and run them against the configured targets",
				Action: func() error {
					cfg, err := config.Load()
					if err != nil {
						fmt.Printf("\n❌ Error: %v\n", err)
						interactive.PauseForEnter()

						return nil
					}

					names, err := suite.NewLoader(Logger, cfg.SuitesDir).Names()
					if err != nil {
						fmt.Printf("\n❌ Error: %v\n", err)
						interactive.PauseForEnter()

						return nil
					}

					if len(names) == 0 {
						fmt.Printf("\nNo suites found in %s.\n", cfg.SuitesDir)
						interactive.PauseForEnter()

						return nil
					}

					selected, err := interactive.SelectMany("Which suites should run? (none = all)", names)
					if err != nil {
						return nil //nolint:nilerr // prompt abort returns to the menu
					}

					runSuites = selected

					if err := runConformance(); err != nil {
						fmt.Printf("\n❌ %v\n", err)
					}

					runSuites = nil

					interactive.PauseForEnter()

					return nil
				},
			},
			{
				Name:        "Apply Sink Migrations",
				Description: "Create the ClickHouse results database and apply migrations",
				Action: func() error {
					cfg, err := config.Load()
					if err != nil {
						fmt.Printf("\n❌ Error: %v\n", err)
						interactive.PauseForEnter()

						return nil
					}

					if !cfg.SinkEnabled() {
						fmt.Println("\nCLICKHOUSE_HOST is not set; sink is disabled.")
						interactive.PauseForEnter()

						return nil
					}

					if !interactive.Confirm("Apply sink migrations now?") {
						fmt.Println("Migration canceled.")
						interactive.PauseForEnter()

						return nil
					}

					if err := migrateCmd.RunE(migrateCmd, nil); err != nil {
						fmt.Printf("\n❌ Error: %v\n", err)
					}

					interactive.PauseForEnter()

					return nil
				},
			},
		})

	return menu.Run()
}
