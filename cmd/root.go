// Package cmd contains CLI command definitions.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Logger is the shared logger instance for all commands.
var Logger *logrus.Logger

var rootCmd = &cobra.Command{
	Use:   "starkconform",
	Short: "Starkconform - Starknet JSON-RPC conformance verifier",
	Long: `Starkconform verifies Starknet node implementations against the
published OpenRPC interface description. It runs declarative conformance
suites against one or more endpoints and can interpose a recording,
differential proxy between a client and several backends.

Run without arguments to launch interactive mode, or use subcommands for
direct operations.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// InitLogger initializes the shared logger from the LOG_LEVEL environment
// variable.
func InitLogger() {
	Logger = logrus.New()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		fmt.Printf("Invalid LOG_LEVEL '%s', defaulting to 'info'\n", logLevel)

		level = logrus.InfoLevel
	}

	Logger.SetLevel(level)
}

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()

	InitLogger()
}
