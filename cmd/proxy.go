package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/starkconform/starkconform/internal/proxy"
)

const proxyShutdownTimeout = 5 * time.Second

var proxyConfigPath string

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run the intercepting JSON-RPC proxy",
	Long: `Run the intercepting proxy between a client and one or more backends.

The proxy terminates TLS when certificate material is configured, rewrites
request ids per client session so concurrent clients never collide upstream,
and optionally records every exchange as JSON lines.

In fanout mode every request is duplicated to all configured targets and the
results are compared after stripping dynamic fields. Divergence is flagged on
the response, or replaces it with an error when fail_on_divergence is set.

Examples:
  starkconform proxy
  starkconform proxy --config proxy.yaml`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := proxy.LoadConfig(proxyConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(configErrorExitCode)
		}

		server, err := proxy.NewServer(Logger, cfg)
		if err != nil {
			return fmt.Errorf("failed to create proxy: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)

		go func() {
			errCh <- server.Start(ctx)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), proxyShutdownTimeout)
		defer cancel()

		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("proxy shutdown failed: %w", err)
		}

		return <-errCh
	},
}

func init() {
	proxyCmd.Flags().StringVar(&proxyConfigPath, "config", "proxy.yaml", "Path to the proxy configuration file")
	rootCmd.AddCommand(proxyCmd)
}
