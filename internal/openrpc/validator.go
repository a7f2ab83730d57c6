package openrpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"
)

// ViolationKind classifies a validation violation.
type ViolationKind string

const (
	// KindSchema marks a structural or format violation of the declared schema.
	KindSchema ViolationKind = "schema"
	// KindSemantic marks a broken cross-call invariant or a disallowed error code.
	KindSemantic ViolationKind = "semantic"
)

// Violation is one concrete defect found in a response.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Field  string        `json:"field,omitempty"`
	Detail string        `json:"detail"`
}

func (v Violation) String() string {
	if v.Field != "" {
		return fmt.Sprintf("%s: %s: %s", v.Kind, v.Field, v.Detail)
	}

	return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
}

// Outcome is the verdict of validating a single response.
type Outcome struct {
	Valid      bool
	Violations []Violation
}

// First returns the first violation, or nil when the outcome is valid.
func (o *Outcome) First() *Violation {
	if len(o.Violations) == 0 {
		return nil
	}

	return &o.Violations[0]
}

// feltPattern matches hex-prefixed field elements as declared by the
// Starknet OpenRPC documents.
var feltPattern = regexp.MustCompile(`^0x(0|[a-fA-F1-9]{1}[a-fA-F0-9]{0,62})$`)

// fieldPrime is the Stark field modulus: 2^251 + 17*2^192 + 1.
var fieldPrime, _ = new(big.Int).SetString(
	"800000000000011000000000000000000000000000000000000000000000001", 16)

// Validator validates JSON values against compiled method specs.
// Exhaustive mode collects every violation instead of stopping at the first,
// so a single case can surface multiple defects at once.
type Validator struct {
	log        logrus.FieldLogger
	exhaustive bool
}

// NewValidator creates a new schema validator.
func NewValidator(log logrus.FieldLogger, exhaustive bool) *Validator {
	return &Validator{
		log:        log.WithField("component", "schema_validator"),
		exhaustive: exhaustive,
	}
}

// ValidateResult checks a successful response's result value against the
// method's declared schema and spec-declared string formats. Unknown extra
// fields are tolerated; missing required fields and type mismatches are not.
// Validation is idempotent: the same input always yields the same outcome.
func (v *Validator) ValidateResult(spec *MethodSpec, result json.RawMessage) *Outcome {
	outcome := &Outcome{Valid: true}

	if spec.Result != nil {
		docResult, err := spec.Result.Validate(gojsonschema.NewBytesLoader(result))
		if err != nil {
			outcome.add(Violation{Kind: KindSchema, Detail: fmt.Sprintf("validating result: %v", err)})
			return outcome
		}

		for _, resErr := range docResult.Errors() {
			outcome.add(Violation{
				Kind:   KindSchema,
				Field:  resErr.Field(),
				Detail: resErr.Description(),
			})

			if !v.exhaustive {
				return outcome
			}
		}
	}

	v.checkFeltRanges(result, "", outcome)

	return outcome
}

// ValidateErrorCode checks that a returned error code belongs to the
// method's declared error-code set.
func (v *Validator) ValidateErrorCode(spec *MethodSpec, code int) *Outcome {
	outcome := &Outcome{Valid: true}

	if len(spec.ErrorCodes) == 0 {
		// Standard JSON-RPC errors are always permitted when the method
		// declares no error taxonomy of its own.
		return outcome
	}

	if _, ok := spec.ErrorCodes[code]; !ok && !isStandardErrorCode(code) {
		outcome.add(Violation{
			Kind:   KindSemantic,
			Detail: fmt.Sprintf("error code %d is not declared for method %s", code, spec.Name),
		})
	}

	return outcome
}

// checkFeltRanges walks the decoded result and checks every felt-shaped
// string against the field prime. The schema's pattern keyword already
// enforces the lexical format; the numeric bound cannot be expressed in
// JSON schema and is enforced here.
func (v *Validator) checkFeltRanges(raw json.RawMessage, path string, outcome *Outcome) {
	if !outcome.Valid && !v.exhaustive {
		return
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return
	}

	v.walkFelts(value, path, outcome)
}

func (v *Validator) walkFelts(value any, path string, outcome *Outcome) {
	if !outcome.Valid && !v.exhaustive {
		return
	}

	switch typed := value.(type) {
	case string:
		if !looksLikeFelt(typed) {
			return
		}

		n, ok := new(big.Int).SetString(strings.TrimPrefix(typed, "0x"), 16)
		if !ok {
			return
		}

		if n.Cmp(fieldPrime) >= 0 {
			outcome.add(Violation{
				Kind:   KindSchema,
				Field:  path,
				Detail: fmt.Sprintf("felt value %s exceeds the field prime", typed),
			})
		}
	case map[string]any:
		for key, child := range typed {
			v.walkFelts(child, joinPath(path, key), outcome)
		}
	case []any:
		for i, child := range typed {
			v.walkFelts(child, fmt.Sprintf("%s[%d]", path, i), outcome)
		}
	}
}

// looksLikeFelt reports whether a string has the lexical shape of a felt.
// Long hex strings that merely resemble hashes of other widths are left to
// the schema's own pattern checks.
func looksLikeFelt(s string) bool {
	return feltPattern.MatchString(s)
}

// isStandardErrorCode reports whether code is a JSON-RPC 2.0 protocol error.
func isStandardErrorCode(code int) bool {
	switch code {
	case -32700, -32600, -32601, -32602, -32603:
		return true
	}

	return code >= -32099 && code <= -32000
}

func (o *Outcome) add(violation Violation) {
	o.Valid = false
	o.Violations = append(o.Violations, violation)
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}

	return path + "." + key
}
