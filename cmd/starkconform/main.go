// Package main is the entry point for the starkconform application.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/starkconform/starkconform/cmd"
)

const (
	envFlag      = "--env"
	envFlagEqual = "--env="
)

func main() {
	envFile, runMenu := parseArgs()

	if !runMenu {
		// Arguments provided, run the cobra CLI (it handles --env itself).
		cmd.Execute()

		return
	}

	if err := loadEnvFile(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading env file: %v\n", err)
		os.Exit(1)
	}

	cmd.InitLogger()

	if err := cmd.RunInteractive(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseArgs extracts the env file and decides between the interactive menu
// and the CLI.
func parseArgs() (envFile string, runMenu bool) {
	for i, arg := range os.Args {
		if arg == envFlag && i+1 < len(os.Args) {
			envFile = os.Args[i+1]

			break
		}

		if strings.HasPrefix(arg, envFlagEqual) {
			envFile = arg[len(envFlagEqual):]

			break
		}
	}

	switch len(os.Args) {
	case 1:
		// No arguments, run the menu.
		return envFile, true
	case 2:
		if os.Args[1] == envFlag {
			fmt.Fprintln(os.Stderr, "Error: --env flag requires a value")
			os.Exit(1)
		}

		if strings.HasPrefix(os.Args[1], envFlagEqual) {
			return envFile, true
		}

		return envFile, false
	case 3:
		if os.Args[1] == envFlag {
			return envFile, true
		}

		return envFile, false
	default:
		return envFile, false
	}
}

// loadEnvFile loads the specified environment file.
func loadEnvFile(file string) error {
	if file == "" {
		file = ".env"
	}

	if err := godotenv.Load(file); err != nil {
		if file == ".env" && os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to load env file '%s': %w", file, err)
	}

	return nil
}
