// Package suite models hierarchical, parameterizable conformance suites:
// what to call, against which targets, with what expected outcome class.
package suite

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Outcome classes a case can expect.
const (
	// ExpectSchema expects a successful result conforming to the method's schema.
	ExpectSchema = "schema"
	// ExpectError expects a JSON-RPC error with a specific declared code.
	ExpectError = "error"
	// ExpectAny accepts any well-formed response (free-form probing).
	ExpectAny = "any"
)

var (
	errSuiteNameRequired   = errors.New("suite name is required")
	errCaseNameRequired    = errors.New("case name is required")
	errCaseMethodRequired  = errors.New("case method is required")
	errInvalidExpectKind   = errors.New("invalid expectation kind")
	errErrorCodeRequired   = errors.New("expectation kind 'error' requires error_code")
	errUnknownDependency   = errors.New("depends_on references unknown case")
	errDuplicateCaseName   = errors.New("duplicate case name within suite")
	errEmptySuite          = errors.New("suite has neither cases nor nested suites")
	errFixtureToolRequired = errors.New("fixture block requires tool")
)

// Duration wraps time.Duration so suite files can use "2m"-style values.
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", node.Value, err)
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Definition is an ordered set of cases and/or nested suites with optional
// setup/teardown hooks. Suites may share state across child cases within one
// run; that state is written only by sequenced cases, never concurrently.
type Definition struct {
	Name     string        `yaml:"name"`
	Timeout  Duration      `yaml:"timeout,omitempty"`
	Setup    []*CaseDef    `yaml:"setup,omitempty"`
	Teardown []*CaseDef    `yaml:"teardown,omitempty"`
	Cases    []*CaseDef    `yaml:"cases,omitempty"`
	Suites   []*Definition `yaml:"suites,omitempty"`
}

// CaseDef describes one concrete invocation before target binding.
type CaseDef struct {
	Name     string   `yaml:"name"`
	Method   string   `yaml:"method"`
	Params   []any    `yaml:"params,omitempty"`
	Optional bool     `yaml:"optional,omitempty"`
	// DependsOn names sibling cases whose outputs this case consumes.
	// Dependencies are resolved into a topological execution order; they
	// are the only sequencing constraint between sibling cases.
	DependsOn []string `yaml:"depends_on,omitempty"`
	// Save extracts values from the response into suite-scoped state,
	// e.g. contract_address: result.contract_address.
	Save map[string]string `yaml:"save,omitempty"`
	// Fixture sources this case's params from an external fixture tool's
	// output instead of literal values.
	Fixture *FixtureRef  `yaml:"fixture,omitempty"`
	Expect  *Expectation `yaml:"expect,omitempty"`
}

// Expectation declares the expected outcome class of a case.
type Expectation struct {
	Kind      string `yaml:"kind"`
	ErrorCode *int   `yaml:"error_code,omitempty"`
	// Equals, when set, requires the result to equal this value exactly
	// (after JSON normalization) in addition to schema conformance.
	Equals any `yaml:"equals,omitempty"`
}

// FixtureRef names an external fixture tool invocation whose output file
// supplies the case parameters.
type FixtureRef struct {
	Tool  string   `yaml:"tool"`
	Input string   `yaml:"input,omitempty"`
	Args  []string `yaml:"args,omitempty"`
}

// ExpectKind returns the effective expectation kind, defaulting to schema.
func (c *CaseDef) ExpectKind() string {
	if c.Expect == nil || c.Expect.Kind == "" {
		return ExpectSchema
	}

	return c.Expect.Kind
}

// Validate checks a definition tree for structural errors. Any error here is
// a configuration error and aborts the run before any case executes.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errSuiteNameRequired
	}

	if len(d.Cases) == 0 && len(d.Suites) == 0 && len(d.Setup) == 0 {
		return fmt.Errorf("%w: %s", errEmptySuite, d.Name)
	}

	names := make(map[string]bool, len(d.Cases)+len(d.Setup))

	for _, group := range [][]*CaseDef{d.Setup, d.Cases, d.Teardown} {
		for _, c := range group {
			if err := c.validate(d.Name); err != nil {
				return err
			}

			if names[c.Name] {
				return fmt.Errorf("%w: %s in suite %s", errDuplicateCaseName, c.Name, d.Name)
			}

			names[c.Name] = true
		}
	}

	// Dependencies may reference any sibling case, including setup hooks.
	for _, c := range d.Cases {
		for _, dep := range c.DependsOn {
			if !names[dep] {
				return fmt.Errorf("%w: %s -> %s in suite %s", errUnknownDependency, c.Name, dep, d.Name)
			}
		}
	}

	for _, nested := range d.Suites {
		if err := nested.Validate(); err != nil {
			return fmt.Errorf("suite %s: %w", d.Name, err)
		}
	}

	return nil
}

func (c *CaseDef) validate(suiteName string) error {
	if c.Name == "" {
		return fmt.Errorf("%w in suite %s", errCaseNameRequired, suiteName)
	}

	if c.Method == "" {
		return fmt.Errorf("%w: %s", errCaseMethodRequired, c.Name)
	}

	if c.Fixture != nil && c.Fixture.Tool == "" {
		return fmt.Errorf("%w: %s", errFixtureToolRequired, c.Name)
	}

	if c.Expect != nil {
		switch c.Expect.Kind {
		case "", ExpectSchema, ExpectAny:
		case ExpectError:
			if c.Expect.ErrorCode == nil {
				return fmt.Errorf("%w: %s", errErrorCodeRequired, c.Name)
			}
		default:
			return fmt.Errorf("%w: %q on case %s", errInvalidExpectKind, c.Expect.Kind, c.Name)
		}
	}

	return nil
}
