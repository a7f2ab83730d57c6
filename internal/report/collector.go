package report

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starkconform/starkconform/internal/suite"
)

// CaseMetric captures one executed case with its suite context.
type CaseMetric struct {
	Suite  string
	Result *suite.CaseResult
}

// Summary provides aggregate statistics across a whole run.
type Summary struct {
	TotalDuration      time.Duration
	TotalCases         int
	Passed             int
	SchemaViolations   int
	SemanticViolations int
	TransportErrors    int
	Skipped            int
	Divergences        int
	PassRate           float64
}

// Collector interface for run metrics collection.
type Collector interface {
	Start(ctx context.Context) error
	Stop() error
	RecordCase(suiteName string, result *suite.CaseResult)
	RecordRun(run *suite.RunResult)
	GetCaseMetrics() []CaseMetric
	GetSummary() Summary
}

type collector struct {
	log         logrus.FieldLogger
	mu          sync.RWMutex
	caseMetrics []CaseMetric
	startTime   time.Time
}

// NewCollector creates a new run metrics collector.
func NewCollector(log logrus.FieldLogger) Collector {
	return &collector{
		log:         log.WithField("component", "metrics_collector"),
		caseMetrics: make([]CaseMetric, 0, 100),
	}
}

func (c *collector) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()

	c.log.Debug("metrics collector started")

	return nil
}

func (c *collector) Stop() error {
	c.log.Debug("metrics collector stopped")

	return nil
}

func (c *collector) RecordCase(suiteName string, result *suite.CaseResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caseMetrics = append(c.caseMetrics, CaseMetric{Suite: suiteName, Result: result})
}

// RecordRun walks a finished result tree and records every case.
func (c *collector) RecordRun(run *suite.RunResult) {
	for _, target := range run.Targets {
		target.Walk(func(s *suite.SuiteResult, res *suite.CaseResult) {
			c.RecordCase(s.Name, res)
		})
	}
}

func (c *collector) GetCaseMetrics() []CaseMetric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]CaseMetric, len(c.caseMetrics))
	copy(result, c.caseMetrics)

	return result
}

func (c *collector) GetSummary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summary := Summary{
		TotalDuration: time.Since(c.startTime),
		TotalCases:    len(c.caseMetrics),
	}

	for _, cm := range c.caseMetrics {
		switch cm.Result.Verdict {
		case suite.VerdictPass:
			summary.Passed++
		case suite.VerdictSchemaViolation:
			summary.SchemaViolations++
		case suite.VerdictSemanticViolation:
			summary.SemanticViolations++
		case suite.VerdictTransportError:
			summary.TransportErrors++
		case suite.VerdictSkipped:
			summary.Skipped++
		}

		if cm.Result.Divergence != "" {
			summary.Divergences++
		}
	}

	if summary.TotalCases > 0 {
		summary.PassRate = float64(summary.Passed) / float64(summary.TotalCases) * 100.0
	}

	return summary
}

var _ Collector = (*collector)(nil)
