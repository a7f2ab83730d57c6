package report

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/starkconform/starkconform/internal/suite"
)

// ResultsFormatter formats a run result tree as per-target tables.
type ResultsFormatter struct {
	log      logrus.FieldLogger
	renderer Renderer
	colors   *ColorHelper
}

// NewResultsFormatter creates a new results table formatter.
func NewResultsFormatter(log logrus.FieldLogger, renderer Renderer) *ResultsFormatter {
	return &ResultsFormatter{
		log:      log.WithField("component", "report.results_formatter"),
		renderer: renderer,
		colors:   NewColorHelper(),
	}
}

// Format converts a run result into formatted tables with failure details.
func (f *ResultsFormatter) Format(run *suite.RunResult) string {
	if run == nil || len(run.Targets) == 0 {
		return "No cases executed"
	}

	var builder strings.Builder

	for _, target := range run.Targets {
		builder.WriteString(f.formatTarget(target))
	}

	return builder.String()
}

func (f *ResultsFormatter) formatTarget(target *suite.SuiteResult) string {
	var (
		headers = []string{"Suite", "Case", "Method", "Verdict", "Attempts", "Duration"}
		rows    = make([][]string, 0, 16)
		failed  = make([]*suite.CaseResult, 0)
		total   int
	)

	target.Walk(func(s *suite.SuiteResult, res *suite.CaseResult) {
		total++

		if res.Verdict != suite.VerdictPass && res.Verdict != suite.VerdictSkipped {
			failed = append(failed, res)
		}

		name := res.Name
		if res.Optional {
			name += " " + f.colors.Muted("(optional)")
		}

		rows = append(rows, []string{
			s.Name,
			name,
			res.Method,
			f.colors.FormatVerdict(res.Verdict),
			fmt.Sprintf("%d", res.Attempts),
			formatDuration(res.Duration),
		})
	})

	passed := target.Counts()[suite.VerdictPass]

	output := "\n" + f.colors.Header("▸ Target: "+target.Target) +
		" (" + f.colors.FormatCases(passed, total) + " cases)" + "\n\n" +
		f.renderer.RenderToString(headers, rows)

	if len(failed) > 0 {
		output += f.formatFailureDetails(failed)
	}

	return output
}

// formatFailureDetails creates a detailed section showing every violation.
func (f *ResultsFormatter) formatFailureDetails(failed []*suite.CaseResult) string {
	var builder strings.Builder

	builder.WriteString("\n\n" + f.colors.Header("▸ Failure Details") + "\n\n")

	for i, res := range failed {
		if i > 0 {
			builder.WriteString("\n")
		}

		builder.WriteString(fmt.Sprintf("%s %s (%s, %d attempt(s))\n",
			f.colors.Failure("✗"),
			f.colors.Bold(res.Name),
			res.Method,
			res.Attempts,
		))

		if res.Detail != "" {
			builder.WriteString(fmt.Sprintf("  %s: %s\n",
				f.colors.Failure(string(res.Verdict)),
				truncate(res.Detail, 120),
			))
		}

		for _, violation := range res.Violations {
			builder.WriteString(fmt.Sprintf("  %s %s: %s\n",
				f.colors.Failure("✗"),
				f.colors.Info(violation.Field),
				violation.Detail,
			))
		}

		if res.Divergence != "" {
			builder.WriteString(fmt.Sprintf("  %s: %s\n",
				f.colors.Warning("divergence"),
				res.Divergence,
			))
		}
	}

	return builder.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	return s[:limit-3] + "..."
}
