package suite

import (
	"encoding/json"
	"time"

	"github.com/starkconform/starkconform/internal/openrpc"
)

// Verdict is the terminal state of one executed case.
type Verdict string

const (
	// VerdictPass marks a conformant response.
	VerdictPass Verdict = "pass"
	// VerdictSchemaViolation marks a non-conformant response shape or format.
	VerdictSchemaViolation Verdict = "schema_violation"
	// VerdictSemanticViolation marks a broken cross-call invariant.
	VerdictSemanticViolation Verdict = "semantic_violation"
	// VerdictTransportError marks a network-level failure after retries.
	VerdictTransportError Verdict = "transport_error"
	// VerdictSkipped marks a case short-circuited by a failed setup hook.
	VerdictSkipped Verdict = "skipped"
)

// CaseResult is the single terminal result a case resolves to, with the raw
// request/response pair kept for post-mortem.
type CaseResult struct {
	Name     string        `json:"name"`
	Method   string        `json:"method"`
	Target   string        `json:"target"`
	Verdict  Verdict       `json:"verdict"`
	Detail   string        `json:"detail,omitempty"`
	Optional bool          `json:"optional,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`

	Violations []openrpc.Violation `json:"violations,omitempty"`
	Divergence string              `json:"divergence,omitempty"`

	Request  json.RawMessage `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// SuiteResult aggregates child results. It is never finalized before all
// required children have a terminal result.
type SuiteResult struct {
	Name     string        `json:"name"`
	Target   string        `json:"target"`
	Passed   bool          `json:"passed"`
	Duration time.Duration `json:"duration"`

	Cases  []*CaseResult  `json:"cases,omitempty"`
	Suites []*SuiteResult `json:"suites,omitempty"`
}

// RunResult is the root of a finished result tree, one sub-tree per target.
type RunResult struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Passed    bool           `json:"passed"`
	Targets   []*SuiteResult `json:"targets"`
}

// Finalize computes the aggregate status: fail if any required child is
// non-pass; optional children are reported but never affect the aggregate.
func (s *SuiteResult) Finalize() {
	s.Passed = true

	for _, c := range s.Cases {
		if !c.Optional && c.Verdict != VerdictPass {
			s.Passed = false
		}
	}

	for _, nested := range s.Suites {
		if !nested.Passed {
			s.Passed = false
		}
	}
}

// Walk visits every case result in the tree, depth first.
func (s *SuiteResult) Walk(visit func(*SuiteResult, *CaseResult)) {
	for _, c := range s.Cases {
		visit(s, c)
	}

	for _, nested := range s.Suites {
		nested.Walk(visit)
	}
}

// Counts tallies case verdicts across the whole tree.
func (s *SuiteResult) Counts() map[Verdict]int {
	counts := make(map[Verdict]int)

	s.Walk(func(_ *SuiteResult, c *CaseResult) {
		counts[c.Verdict]++
	})

	return counts
}
