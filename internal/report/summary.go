package report

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// SummaryFormatter formats run summary statistics as a table.
type SummaryFormatter struct {
	log      logrus.FieldLogger
	renderer Renderer
	colors   *ColorHelper
}

// NewSummaryFormatter creates a new summary table formatter.
func NewSummaryFormatter(log logrus.FieldLogger, renderer Renderer) *SummaryFormatter {
	return &SummaryFormatter{
		log:      log.WithField("component", "report.summary_formatter"),
		renderer: renderer,
		colors:   NewColorHelper(),
	}
}

// Format converts summary metrics into a formatted table string.
func (f *SummaryFormatter) Format(summary Summary) string {
	passedValue := fmt.Sprintf("%d (%s)", summary.Passed, f.colors.FormatPercentage(summary.PassRate))
	if summary.Passed == summary.TotalCases {
		passedValue = f.colors.Success(fmt.Sprintf("%d (%.1f%%)", summary.Passed, summary.PassRate))
	}

	failedTotal := summary.SchemaViolations + summary.SemanticViolations + summary.TransportErrors

	failedValue := fmt.Sprintf("%d", failedTotal)
	if failedTotal > 0 {
		failedValue = f.colors.Failure(failedValue)
	} else {
		failedValue = f.colors.Success(failedValue)
	}

	divergenceValue := fmt.Sprintf("%d", summary.Divergences)
	if summary.Divergences > 0 {
		divergenceValue = f.colors.Warning(divergenceValue)
	} else {
		divergenceValue = f.colors.Muted(divergenceValue)
	}

	var (
		headers = []string{"Metric", "Value"}
		rows    = [][]string{
			{"Total Cases", f.colors.Bold(fmt.Sprintf("%d", summary.TotalCases))},
			{"Passed", passedValue},
			{"Failed", failedValue},
			{"Schema Violations", fmt.Sprintf("%d", summary.SchemaViolations)},
			{"Semantic Violations", fmt.Sprintf("%d", summary.SemanticViolations)},
			{"Transport Errors", fmt.Sprintf("%d", summary.TransportErrors)},
			{"Skipped", fmt.Sprintf("%d", summary.Skipped)},
			{"Divergences", divergenceValue},
			{"Total Duration", formatDuration(summary.TotalDuration)},
		}
	)

	return "\n" + f.colors.Header("▸ Summary") + "\n\n" + f.renderer.RenderToString(headers, rows)
}
