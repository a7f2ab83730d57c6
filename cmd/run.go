package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/starkconform/starkconform/internal/config"
	"github.com/starkconform/starkconform/internal/fixtures"
	"github.com/starkconform/starkconform/internal/openrpc"
	"github.com/starkconform/starkconform/internal/report"
	"github.com/starkconform/starkconform/internal/rpc"
	"github.com/starkconform/starkconform/internal/runner"
	"github.com/starkconform/starkconform/internal/sink"
	"github.com/starkconform/starkconform/internal/suite"
)

const configErrorExitCode = 2

var (
	runSuites   []string
	runArtifact string
	runVerbose  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run conformance suites against the configured targets",
	Long: `Run conformance suites against every configured endpoint.

Targets, suite directory, OpenRPC document location and concurrency come
from environment variables (see show-config). Each target is verified
independently and gets its own result sub-tree.

Exit codes:
  0  every required case passed on every target
  1  at least one required case failed
  2  configuration error, nothing was executed

Examples:
  starkconform run
  starkconform run --suite read_methods --suite trace_methods
  starkconform run --artifact run.json`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runConformance()
	},
}

func runConformance() error {
	log := Logger
	if runVerbose {
		log = newLogger(true)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(configErrorExitCode)
	}

	targets, err := cfg.ParseTargets()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(configErrorExitCode)
	}

	registry, err := openrpc.Load(log, cfg.OpenRPCDoc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(configErrorExitCode)
	}

	defs, err := loadSuites(log, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(configErrorExitCode)
	}

	tools, err := parseFixtureTools(cfg.FixtureTools)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(configErrorExitCode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := report.NewCollector(log)
	if err := collector.Start(ctx); err != nil {
		return fmt.Errorf("starting metrics collector: %w", err)
	}

	renderer := report.NewRenderer(log)
	formatter := report.NewFormatter(
		os.Stdout,
		runVerbose,
		collector,
		report.NewResultsFormatter(log, renderer),
		report.NewSummaryFormatter(log, renderer),
	)

	scheduler := runner.NewScheduler(&runner.Config{
		Logger:           log,
		Client:           rpc.NewClient(log, cfg.RequestTimeout, rpc.DefaultRetryPolicy()),
		Registry:         registry,
		Fixtures:         fixtures.NewRegistry(log, tools),
		Validator:        openrpc.NewValidator(log, cfg.Exhaustive),
		Concurrency:      cfg.Concurrency,
		CaseRetries:      cfg.CaseRetries,
		CaseTimeout:      cfg.CaseTimeout,
		FailOnDivergence: cfg.FailOnDivergence,
	})

	formatter.PrintPhase(fmt.Sprintf("Running %d suite(s) against %d target(s)", len(defs), len(targets)))

	result, err := scheduler.Run(ctx, defs, targets)
	if err != nil {
		formatter.PrintError("run failed", err)

		return fmt.Errorf("run failed: %w", err)
	}

	collector.RecordRun(result)
	formatter.PrintResults(result)
	formatter.PrintSummary()

	_ = collector.Stop()

	artifactPath := runArtifact
	if artifactPath == "" {
		artifactPath = cfg.ArtifactPath
	}

	if artifactPath != "" {
		if err := report.WriteArtifact(artifactPath, result); err != nil {
			formatter.PrintError("failed to write artifact", err)

			return err
		}

		formatter.PrintProgress("artifact written to "+artifactPath, 0)
	}

	if cfg.SinkEnabled() {
		if err := persistRun(ctx, log, cfg, result); err != nil {
			formatter.PrintError("failed to persist run results", err)
			log.WithError(err).Warn("failed to persist run results")
		}
	}

	if !result.Passed {
		formatter.PrintError(fmt.Sprintf("conformance failures detected (run %s)", result.RunID), nil)

		return fmt.Errorf("conformance failures detected (run %s)", result.RunID)
	}

	formatter.PrintSuccess("all required cases passed")

	return nil
}

func loadSuites(log logrus.FieldLogger, cfg *config.Config) ([]*suite.Definition, error) {
	loader := suite.NewLoader(log, cfg.SuitesDir)

	if len(runSuites) == 0 {
		defs, err := loader.LoadAll()
		if err != nil {
			return nil, err
		}

		if len(defs) == 0 {
			return nil, fmt.Errorf("no suites found in %s", cfg.SuitesDir)
		}

		return defs, nil
	}

	defs := make([]*suite.Definition, 0, len(runSuites))

	for _, name := range runSuites {
		def, err := loader.Load(name)
		if err != nil {
			return nil, err
		}

		defs = append(defs, def)
	}

	return defs, nil
}

// parseFixtureTools expands entries of the form "name=command args" into
// registered fixture generator tools.
func parseFixtureTools(spec string) ([]*fixtures.Tool, error) {
	if spec == "" {
		return nil, nil
	}

	entries := strings.Split(spec, ",")
	tools := make([]*fixtures.Tool, 0, len(entries))

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, command, found := strings.Cut(entry, "=")
		if !found {
			return nil, fmt.Errorf("invalid fixture tool %q: want name=command", entry)
		}

		parts, err := shellquote.Split(command)
		if err != nil {
			return nil, fmt.Errorf("invalid fixture tool command %q: %w", command, err)
		}

		if len(parts) == 0 {
			return nil, fmt.Errorf("invalid fixture tool %q: empty command", entry)
		}

		tools = append(tools, &fixtures.Tool{
			Name:   strings.TrimSpace(name),
			Binary: parts[0],
			Args:   parts[1:],
		})
	}

	return tools, nil
}

func persistRun(ctx context.Context, log logrus.FieldLogger, cfg *config.Config, result *suite.RunResult) error {
	s, err := sink.New(log, cfg)
	if err != nil {
		return err
	}

	defer func() {
		_ = s.Stop()
	}()

	if err := s.Start(ctx); err != nil {
		return err
	}

	if err := sink.Migrate(log, cfg); err != nil {
		return err
	}

	return s.InsertRun(ctx, result)
}

func init() {
	runCmd.Flags().StringArrayVar(&runSuites, "suite", nil, "Suite name to run (repeatable; default: all suites in SUITES_DIR)")
	runCmd.Flags().StringVar(&runArtifact, "artifact", "", "Write the full result tree to this JSON file")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(runCmd)
}
