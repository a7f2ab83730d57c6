// Package runner expands suites against targets and executes cases
// concurrently with retry, deadlines and dependency-ordered sequencing.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/starkconform/starkconform/internal/fixtures"
	"github.com/starkconform/starkconform/internal/openrpc"
	"github.com/starkconform/starkconform/internal/rpc"
	"github.com/starkconform/starkconform/internal/suite"
)

const (
	defaultConcurrency = 4
	defaultCaseRetries = 2
	defaultCaseTimeout = 30 * time.Second
)

// Config contains scheduler configuration.
type Config struct {
	Logger    logrus.FieldLogger
	Client    *rpc.Client
	Registry  *openrpc.Registry
	Fixtures  *fixtures.Registry
	Validator *openrpc.Validator

	// Concurrency bounds in-flight cases per target, so a single node
	// under test is never overwhelmed.
	Concurrency int
	// CaseRetries bounds whole-case re-execution on transport errors.
	// Schema and semantic violations are never retried.
	CaseRetries int
	CaseTimeout time.Duration

	// FailOnDivergence promotes proxy fan-out divergence annotations to
	// semantic violations instead of recording them on the result only.
	FailOnDivergence bool
}

// Scheduler runs suites against a set of targets and produces a result tree.
type Scheduler struct {
	log         logrus.FieldLogger
	client      *rpc.Client
	registry    *openrpc.Registry
	fixtures    *fixtures.Registry
	validator   *openrpc.Validator
	concurrency int
	caseRetries int
	caseTimeout time.Duration
	failOnDiv   bool
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg *Config) *Scheduler {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	caseRetries := cfg.CaseRetries
	if caseRetries < 0 {
		caseRetries = defaultCaseRetries
	}

	caseTimeout := cfg.CaseTimeout
	if caseTimeout <= 0 {
		caseTimeout = defaultCaseTimeout
	}

	return &Scheduler{
		log:         cfg.Logger.WithField("component", "scheduler"),
		client:      cfg.Client,
		registry:    cfg.Registry,
		fixtures:    cfg.Fixtures,
		validator:   cfg.Validator,
		concurrency: concurrency,
		caseRetries: caseRetries,
		caseTimeout: caseTimeout,
		failOnDiv:   cfg.FailOnDivergence,
	}
}

// Run expands each suite against every target and executes them. One sibling
// sub-tree is produced per target so each backend is judged independently.
func (s *Scheduler) Run(ctx context.Context, defs []*suite.Definition, targets []*rpc.Endpoint) (*suite.RunResult, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("no suites to run")
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets configured")
	}

	run := &suite.RunResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Targets:   make([]*suite.SuiteResult, len(targets)),
	}

	s.log.WithFields(logrus.Fields{
		"run_id":  run.RunID,
		"suites":  len(defs),
		"targets": len(targets),
	}).Info("starting run")

	g, gCtx := errgroup.WithContext(ctx)

	for i, target := range targets {
		g.Go(func() error {
			sem := semaphore.NewWeighted(int64(s.concurrency))

			root := &suite.SuiteResult{Name: target.Name, Target: target.Name}

			start := time.Now()

			for _, def := range defs {
				observer := openrpc.NewChainObserver()
				root.Suites = append(root.Suites, s.runSuite(gCtx, def, target, sem, observer))
			}

			root.Duration = time.Since(start)
			root.Finalize()
			run.Targets[i] = root

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	run.Duration = time.Since(run.StartedAt)
	run.Passed = true

	for _, target := range run.Targets {
		if !target.Passed {
			run.Passed = false
		}
	}

	s.log.WithFields(logrus.Fields{
		"run_id":   run.RunID,
		"passed":   run.Passed,
		"duration": run.Duration,
	}).Info("run complete")

	return run, nil
}

// runSuite executes one suite against one target. The aggregate status is
// only computed once every required child has a terminal result.
func (s *Scheduler) runSuite(
	ctx context.Context,
	def *suite.Definition,
	target *rpc.Endpoint,
	sem *semaphore.Weighted,
	observer *openrpc.ChainObserver,
) *suite.SuiteResult {
	log := s.log.WithFields(logrus.Fields{
		"suite":  def.Name,
		"target": target.Name,
	})

	result := &suite.SuiteResult{Name: def.Name, Target: target.Name}
	start := time.Now()

	defer func() {
		result.Duration = time.Since(start)
		result.Finalize()
	}()

	if def.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, def.Timeout.Std())
		defer cancel()
	}

	state := suite.NewState()

	// Setup hooks run sequentially; a failure skips the children instead of
	// failing them, so one broken hook does not cascade into misleading
	// case failures. The suite itself still fails.
	setupFailed := false

	for _, hook := range def.Setup {
		hookResult := s.executeCase(ctx, hook, target, state, observer)
		result.Cases = append(result.Cases, hookResult)

		if hookResult.Verdict != suite.VerdictPass {
			log.WithField("hook", hook.Name).Warn("setup hook failed, skipping children")

			setupFailed = true

			break
		}
	}

	if setupFailed {
		for _, c := range def.Cases {
			result.Cases = append(result.Cases, &suite.CaseResult{
				Name:     c.Name,
				Method:   c.Method,
				Target:   target.Name,
				Optional: c.Optional,
				Verdict:  suite.VerdictSkipped,
				Detail:   "setup hook failed",
			})
		}

		for _, nested := range def.Suites {
			result.Suites = append(result.Suites, skipSuite(nested, target, "setup hook failed"))
		}

		return result
	}

	levels, err := executionLevels(def)
	if err != nil {
		// A cycle is a configuration defect; nothing can run safely.
		for _, c := range def.Cases {
			result.Cases = append(result.Cases, &suite.CaseResult{
				Name:     c.Name,
				Method:   c.Method,
				Target:   target.Name,
				Optional: c.Optional,
				Verdict:  suite.VerdictSkipped,
				Detail:   err.Error(),
			})
		}

		return result
	}

	for _, level := range levels {
		result.Cases = append(result.Cases, s.runLevel(ctx, level, target, sem, state, observer)...)
	}

	for _, nested := range def.Suites {
		result.Suites = append(result.Suites, s.runSuite(ctx, nested, target, sem, observer))
	}

	for _, hook := range def.Teardown {
		hookResult := s.executeCase(ctx, hook, target, state, observer)
		hookResult.Optional = true // teardown is best-effort
		result.Cases = append(result.Cases, hookResult)
	}

	return result
}

// runLevel executes one dependency level. Cases that write shared state run
// first, sequenced, preserving single-writer semantics; the rest of the
// level runs concurrently up to the per-target bound.
func (s *Scheduler) runLevel(
	ctx context.Context,
	level []*suite.CaseDef,
	target *rpc.Endpoint,
	sem *semaphore.Weighted,
	state *suite.State,
	observer *openrpc.ChainObserver,
) []*suite.CaseResult {
	var writers, readers []*suite.CaseDef

	for _, c := range level {
		if len(c.Save) > 0 {
			writers = append(writers, c)
		} else {
			readers = append(readers, c)
		}
	}

	results := make([]*suite.CaseResult, 0, len(level))

	for _, c := range writers {
		results = append(results, s.executeCase(ctx, c, target, state, observer))
	}

	concurrent := make([]*suite.CaseResult, len(readers))

	g, gCtx := errgroup.WithContext(ctx)

	for i, c := range readers {
		g.Go(func() error {
			if err := sem.Acquire(gCtx, 1); err != nil {
				concurrent[i] = s.cancelledResult(c, target)
				return nil //nolint:nilerr // cancellation is recorded on the case, siblings keep going
			}
			defer sem.Release(1)

			concurrent[i] = s.executeCase(gCtx, c, target, state, observer)

			return nil
		})
	}

	_ = g.Wait()

	return append(results, concurrent...)
}

// executeCase resolves a case to exactly one terminal result. Only transport
// errors are retried; violations are never transient.
func (s *Scheduler) executeCase(
	ctx context.Context,
	c *suite.CaseDef,
	target *rpc.Endpoint,
	state *suite.State,
	observer *openrpc.ChainObserver,
) *suite.CaseResult {
	result := &suite.CaseResult{
		Name:     c.Name,
		Method:   c.Method,
		Target:   target.Name,
		Optional: c.Optional,
	}

	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	params, err := s.resolveParams(ctx, c, state)
	if err != nil {
		result.Verdict = suite.VerdictTransportError
		result.Detail = fmt.Sprintf("resolving params: %v", err)

		return result
	}

	if raw, marshalErr := json.Marshal(map[string]any{"method": c.Method, "params": params}); marshalErr == nil {
		result.Request = raw
	}

	for attempt := 0; attempt <= s.caseRetries; attempt++ {
		result.Attempts = attempt + 1

		if ctx.Err() != nil {
			result.Verdict = suite.VerdictTransportError
			result.Detail = "cancelled"

			return result
		}

		caseCtx, cancel := context.WithTimeout(ctx, s.caseTimeout)
		resp, callErr := s.client.Call(caseCtx, target, c.Method, params)
		cancel()

		if callErr != nil {
			if ctx.Err() != nil {
				result.Verdict = suite.VerdictTransportError
				result.Detail = "cancelled"

				return result
			}

			result.Verdict = suite.VerdictTransportError
			result.Detail = callErr.Error()

			continue
		}

		s.judge(c, target, resp, state, observer, result)

		return result
	}

	return result
}

// judge turns a well-formed JSON-RPC response into a verdict.
func (s *Scheduler) judge(
	c *suite.CaseDef,
	target *rpc.Endpoint,
	resp *rpc.Response,
	state *suite.State,
	observer *openrpc.ChainObserver,
	result *suite.CaseResult,
) {
	if raw, err := json.Marshal(resp); err == nil {
		result.Response = raw
	}

	result.Divergence = resp.Divergence

	spec := s.registry.Method(c.Method)
	if spec == nil {
		result.Verdict = suite.VerdictSchemaViolation
		result.Detail = fmt.Sprintf("method %s is not declared by the openrpc document", c.Method)

		return
	}

	if resp.Error != nil {
		s.judgeError(c, spec, resp.Error, result)
		return
	}

	switch c.ExpectKind() {
	case suite.ExpectError:
		result.Verdict = suite.VerdictSemanticViolation
		result.Detail = fmt.Sprintf("expected error code %d, got a successful result", *c.Expect.ErrorCode)

		return
	case suite.ExpectSchema:
		outcome := s.validator.ValidateResult(spec, resp.Result)
		if !outcome.Valid {
			result.Verdict = suite.VerdictSchemaViolation
			result.Detail = outcome.First().String()
			result.Violations = outcome.Violations

			return
		}

		if c.Expect != nil && c.Expect.Equals != nil && !resultEquals(c.Expect.Equals, resp.Result) {
			result.Verdict = suite.VerdictSemanticViolation
			result.Detail = fmt.Sprintf("result does not equal expected value %v", c.Expect.Equals)

			return
		}
	case suite.ExpectAny:
	}

	if violation := observer.Observe(target.Name, c.Method, resp.Result); violation != nil {
		result.Verdict = suite.VerdictSemanticViolation
		result.Detail = violation.Detail
		result.Violations = append(result.Violations, *violation)

		return
	}

	if resp.Divergence != "" && s.failOnDiv {
		result.Verdict = suite.VerdictSemanticViolation
		result.Detail = fmt.Sprintf("fan-out divergence: %s", resp.Divergence)

		return
	}

	if err := state.SaveFromResponse(c.Save, resp.Result); err != nil {
		result.Verdict = suite.VerdictSemanticViolation
		result.Detail = err.Error()

		return
	}

	result.Verdict = suite.VerdictPass
}

// judgeError evaluates a JSON-RPC error response against the expectation.
func (s *Scheduler) judgeError(c *suite.CaseDef, spec *openrpc.MethodSpec, rpcErr *rpc.Error, result *suite.CaseResult) {
	switch c.ExpectKind() {
	case suite.ExpectError:
		if rpcErr.Code != *c.Expect.ErrorCode {
			result.Verdict = suite.VerdictSemanticViolation
			result.Detail = fmt.Sprintf("expected error code %d, got %d (%s)", *c.Expect.ErrorCode, rpcErr.Code, rpcErr.Message)

			return
		}

		if outcome := s.validator.ValidateErrorCode(spec, rpcErr.Code); !outcome.Valid {
			result.Verdict = suite.VerdictSemanticViolation
			result.Detail = outcome.First().Detail
			result.Violations = outcome.Violations

			return
		}

		result.Verdict = suite.VerdictPass
	case suite.ExpectAny:
		if outcome := s.validator.ValidateErrorCode(spec, rpcErr.Code); !outcome.Valid {
			result.Verdict = suite.VerdictSemanticViolation
			result.Detail = outcome.First().Detail
			result.Violations = outcome.Violations

			return
		}

		result.Verdict = suite.VerdictPass
	default:
		result.Verdict = suite.VerdictSchemaViolation
		result.Detail = fmt.Sprintf("expected a schema-conformant result, got error %d: %s", rpcErr.Code, rpcErr.Message)
	}
}

// resolveParams binds state references and fixture outputs into the final
// parameter list.
func (s *Scheduler) resolveParams(ctx context.Context, c *suite.CaseDef, state *suite.State) ([]any, error) {
	if c.Fixture != nil {
		if s.fixtures == nil {
			return nil, fmt.Errorf("case %s requires fixture tool %s but none are configured", c.Name, c.Fixture.Tool)
		}

		return s.fixtures.Generate(ctx, c.Fixture.Tool, c.Fixture.Input, c.Fixture.Args)
	}

	return state.BindParams(c.Params)
}

func (s *Scheduler) cancelledResult(c *suite.CaseDef, target *rpc.Endpoint) *suite.CaseResult {
	return &suite.CaseResult{
		Name:     c.Name,
		Method:   c.Method,
		Target:   target.Name,
		Optional: c.Optional,
		Attempts: 0,
		Verdict:  suite.VerdictTransportError,
		Detail:   "cancelled",
	}
}

// skipSuite marks a whole nested suite as skipped without attempting it.
func skipSuite(def *suite.Definition, target *rpc.Endpoint, reason string) *suite.SuiteResult {
	result := &suite.SuiteResult{Name: def.Name, Target: target.Name}

	for _, c := range append(append([]*suite.CaseDef{}, def.Setup...), def.Cases...) {
		result.Cases = append(result.Cases, &suite.CaseResult{
			Name:     c.Name,
			Method:   c.Method,
			Target:   target.Name,
			Optional: c.Optional,
			Verdict:  suite.VerdictSkipped,
			Detail:   reason,
		})
	}

	for _, nested := range def.Suites {
		result.Suites = append(result.Suites, skipSuite(nested, target, reason))
	}

	result.Finalize()

	return result
}

// resultEquals compares an expected literal with a raw result after JSON
// normalization, so YAML-sourced values and wire values compare cleanly.
func resultEquals(expected any, result json.RawMessage) bool {
	normalized, err := json.Marshal(expected)
	if err != nil {
		return false
	}

	var a, b any
	if err := json.Unmarshal(normalized, &a); err != nil {
		return false
	}

	if err := json.Unmarshal(result, &b); err != nil {
		return false
	}

	return reflect.DeepEqual(a, b)
}
