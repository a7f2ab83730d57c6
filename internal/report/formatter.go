package report

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/starkconform/starkconform/internal/suite"
)

// Formatter provides clean, human-friendly run output.
type Formatter interface {
	PrintPhase(phase string)
	PrintProgress(message string, duration time.Duration)
	PrintSuccess(message string)
	PrintError(message string, err error)
	PrintResults(run *suite.RunResult)
	PrintSummary()
}

type formatter struct {
	writer  io.Writer
	verbose bool

	metrics          Collector
	resultsFormatter *ResultsFormatter
	summaryFormatter *SummaryFormatter

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	blue   *color.Color
	gray   *color.Color
}

// NewFormatter creates a new output formatter.
func NewFormatter(
	writer io.Writer,
	verbose bool,
	metricsCollector Collector,
	resultsFormatter *ResultsFormatter,
	summaryFormatter *SummaryFormatter,
) Formatter {
	return &formatter{
		writer:           writer,
		verbose:          verbose,
		metrics:          metricsCollector,
		resultsFormatter: resultsFormatter,
		summaryFormatter: summaryFormatter,
		green:            color.New(color.FgGreen),
		red:              color.New(color.FgRed),
		yellow:           color.New(color.FgYellow),
		blue:             color.New(color.FgBlue),
		gray:             color.New(color.FgHiBlack),
	}
}

// PrintPhase prints a phase separator.
func (f *formatter) PrintPhase(phase string) {
	f.blue.Fprintf(f.writer, "\n▸ %s\n", phase)
}

// PrintProgress prints progress with timing.
func (f *formatter) PrintProgress(message string, duration time.Duration) {
	if duration > 0 {
		f.gray.Fprintf(f.writer, "%s (%s)\n", message, formatDuration(duration))
	} else {
		fmt.Fprintf(f.writer, "%s\n", message)
	}
}

// PrintSuccess prints a green message.
func (f *formatter) PrintSuccess(message string) {
	f.green.Fprintf(f.writer, "%s\n", message)
}

// PrintError prints a red message with error details.
func (f *formatter) PrintError(message string, err error) {
	f.red.Fprintf(f.writer, "%s", message)

	if err != nil {
		f.red.Fprintf(f.writer, ": %v", err)
	}

	fmt.Fprintf(f.writer, "\n")
}

// PrintResults prints per-target case tables with failure details.
func (f *formatter) PrintResults(run *suite.RunResult) {
	fmt.Fprintln(f.writer, f.resultsFormatter.Format(run))
}

// PrintSummary prints the aggregate statistics table.
func (f *formatter) PrintSummary() {
	fmt.Fprintln(f.writer, f.summaryFormatter.Format(f.metrics.GetSummary()))
}
