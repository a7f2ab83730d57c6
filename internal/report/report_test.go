package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkconform/starkconform/internal/suite"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func TestColorHelper_FormatVerdict(t *testing.T) {
	// Disable colors for consistent testing
	color.NoColor = true
	defer func() { color.NoColor = false }()

	helper := NewColorHelper()

	tests := []struct {
		name     string
		verdict  suite.Verdict
		expected string
	}{
		{
			name:     "pass",
			verdict:  suite.VerdictPass,
			expected: "✓ PASS",
		},
		{
			name:     "schema violation",
			verdict:  suite.VerdictSchemaViolation,
			expected: "✗ SCHEMA",
		},
		{
			name:     "semantic violation",
			verdict:  suite.VerdictSemanticViolation,
			expected: "✗ SEMANTIC",
		},
		{
			name:     "transport error",
			verdict:  suite.VerdictTransportError,
			expected: "✗ TRANSPORT",
		},
		{
			name:     "skipped",
			verdict:  suite.VerdictSkipped,
			expected: "- SKIP",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, helper.FormatVerdict(tt.verdict))
		})
	}
}

func TestColorHelper_FormatPercentage(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	helper := NewColorHelper()

	tests := []struct {
		name     string
		value    float64
		expected string
	}{
		{
			name:     "100%",
			value:    100.0,
			expected: "100.0%",
		},
		{
			name:     "90%",
			value:    90.0,
			expected: "90.0%",
		},
		{
			name:     "0%",
			value:    0.0,
			expected: "0.0%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, helper.FormatPercentage(tt.value))
		})
	}
}

func TestColorHelper_FormatCases(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	helper := NewColorHelper()

	tests := []struct {
		name     string
		passed   int
		total    int
		expected string
	}{
		{
			name:     "all passed",
			passed:   3,
			total:    3,
			expected: "3/3",
		},
		{
			name:     "partial",
			passed:   1,
			total:    2,
			expected: "1/2",
		},
		{
			name:     "none passed",
			passed:   0,
			total:    4,
			expected: "0/4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, helper.FormatCases(tt.passed, tt.total))
		})
	}
}

func TestColorHelper_ColorsDisabledWhenNoColor(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	helper := NewColorHelper()
	assert.False(t, helper.enabled)

	assert.Equal(t, "test", helper.Success("test"))
	assert.Equal(t, "test", helper.Failure("test"))
	assert.Equal(t, "test", helper.Warning("test"))
}

func sampleRun() *suite.RunResult {
	return &suite.RunResult{
		RunID:     "run-1",
		StartedAt: time.Now(),
		Duration:  3 * time.Second,
		Targets: []*suite.SuiteResult{
			{
				Name:   "read_methods",
				Target: "devnet",
				Passed: false,
				Cases: []*suite.CaseResult{
					{
						Name:     "chain_id_is_felt",
						Method:   "starknet_chainId",
						Target:   "devnet",
						Verdict:  suite.VerdictPass,
						Attempts: 1,
						Duration: 20 * time.Millisecond,
					},
					{
						Name:     "block_has_required_fields",
						Method:   "starknet_getBlockWithTxHashes",
						Target:   "devnet",
						Verdict:  suite.VerdictSchemaViolation,
						Detail:   "missing required field",
						Attempts: 1,
						Duration: 35 * time.Millisecond,
					},
				},
			},
		},
	}
}

func TestCollectorSummary(t *testing.T) {
	collector := NewCollector(testLogger())
	require.NoError(t, collector.Start(context.Background()))

	collector.RecordRun(sampleRun())

	summary := collector.GetSummary()
	assert.Equal(t, 2, summary.TotalCases)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.SchemaViolations)
	assert.Equal(t, 0, summary.TransportErrors)
	assert.InDelta(t, 50.0, summary.PassRate, 0.01)

	metrics := collector.GetCaseMetrics()
	require.Len(t, metrics, 2)
	assert.Equal(t, "read_methods", metrics[0].Suite)

	require.NoError(t, collector.Stop())
}

func TestResultsFormatter(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	formatter := NewResultsFormatter(testLogger(), NewRenderer(testLogger()))
	output := formatter.Format(sampleRun())

	assert.Contains(t, output, "Target: devnet")
	assert.Contains(t, output, "(1/2 cases)")
	assert.Contains(t, output, "chain_id_is_felt")
	assert.Contains(t, output, "✓ PASS")
	assert.Contains(t, output, "✗ SCHEMA")
	assert.Contains(t, output, "Failure Details")
	assert.Contains(t, output, "missing required field")
}

func TestResultsFormatterEmptyRun(t *testing.T) {
	formatter := NewResultsFormatter(testLogger(), NewRenderer(testLogger()))
	assert.Equal(t, "No cases executed", formatter.Format(&suite.RunResult{}))
}

func TestSummaryFormatter(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	formatter := NewSummaryFormatter(testLogger(), NewRenderer(testLogger()))
	output := formatter.Format(Summary{
		TotalCases:       4,
		Passed:           3,
		SchemaViolations: 1,
		PassRate:         75.0,
		TotalDuration:    2 * time.Second,
	})

	assert.Contains(t, output, "Summary")
	assert.Contains(t, output, "3 (75.0%)")
	assert.Contains(t, output, "2.0s")
}

func TestFormatterPrintError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer

	f := NewFormatter(&buf, false, nil, nil, nil)

	f.PrintError("failed to write artifact", errors.New("disk full"))
	assert.Equal(t, "failed to write artifact: disk full\n", buf.String())

	buf.Reset()
	f.PrintError("conformance failures detected", nil)
	assert.Equal(t, "conformance failures detected\n", buf.String())
}

func TestWriteArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, WriteArtifact(path, sampleRun()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded suite.RunResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	require.Len(t, decoded.Targets, 1)
	assert.Len(t, decoded.Targets[0].Cases, 2)
}
