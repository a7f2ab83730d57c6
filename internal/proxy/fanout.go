package proxy

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"
)

// upstreamResult is the outcome of one fan-out leg.
type upstreamResult struct {
	Target     string
	Response   []byte
	Parsed     *envelope
	Err        error
	DurationMs int64
}

// envelope is the minimal JSON-RPC response shape the proxy inspects.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// compareResults judges agreement across fan-out legs: all successful
// results must be structurally equal modulo the configured dynamic fields.
// It returns a human-readable divergence summary, empty when all agree, and
// the first observed diff for recording.
func compareResults(results []*upstreamResult, ignoreFields []string) (summary, diff string) {
	var (
		reference       *upstreamResult
		referenceVal    any
		divergedTargets []string
		firstDiff       string
	)

	for _, res := range results {
		if res.Err != nil || res.Parsed == nil {
			continue
		}

		val, err := normalizeForComparison(res.Parsed, ignoreFields)
		if err != nil {
			continue
		}

		if reference == nil {
			reference = res
			referenceVal = val

			continue
		}

		if d := cmp.Diff(referenceVal, val); d != "" {
			divergedTargets = append(divergedTargets, res.Target)

			if firstDiff == "" {
				firstDiff = d
			}
		}
	}

	if len(divergedTargets) == 0 {
		return "", ""
	}

	succeeded := 0

	for _, res := range results {
		if res.Err == nil && res.Parsed != nil {
			succeeded++
		}
	}

	return fmt.Sprintf("%d/%d targets diverged from %s: %v",
		len(divergedTargets), succeeded, reference.Target, divergedTargets), firstDiff
}

// normalizeForComparison decodes the result or error payload and strips
// dynamic fields (timestamps and the like) at every nesting depth.
func normalizeForComparison(env *envelope, ignoreFields []string) (any, error) {
	payload := env.Result
	if payload == nil {
		payload = env.Error
	}

	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	ignore := make(map[string]bool, len(ignoreFields))
	for _, f := range ignoreFields {
		ignore[f] = true
	}

	return stripFields(value, ignore), nil
}

func stripFields(value any, ignore map[string]bool) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))

		for k, v := range typed {
			if ignore[k] {
				continue
			}

			out[k] = stripFields(v, ignore)
		}

		return out
	case []any:
		out := make([]any, len(typed))

		for i, v := range typed {
			out[i] = stripFields(v, ignore)
		}

		return out
	default:
		return value
	}
}

// firstSuccess returns the first leg that produced a well-formed response,
// in target order, or nil when every upstream failed.
func firstSuccess(results []*upstreamResult) *upstreamResult {
	for _, res := range results {
		if res.Err == nil && res.Parsed != nil {
			return res
		}
	}

	return nil
}
