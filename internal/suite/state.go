package suite

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// State is the suite-scoped shared state handed from producing cases to
// consuming ones. Access is serialized by the scheduler's sequencing of
// dependent cases, so no locking is needed here.
type State struct {
	values map[string]any
}

// NewState creates empty state for one suite run.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// Set stores a value produced by a case.
func (s *State) Set(key string, value any) {
	s.values[key] = value
}

// Get returns a stored value.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// BindParams substitutes "$ref:key" placeholders in a parameter list with
// values from state. Placeholders may appear at any nesting depth.
func (s *State) BindParams(params []any) ([]any, error) {
	bound := make([]any, len(params))

	for i, p := range params {
		v, err := s.bindValue(p)
		if err != nil {
			return nil, err
		}

		bound[i] = v
	}

	return bound, nil
}

func (s *State) bindValue(value any) (any, error) {
	switch typed := value.(type) {
	case string:
		if !strings.HasPrefix(typed, "$ref:") {
			return typed, nil
		}

		key := strings.TrimPrefix(typed, "$ref:")

		v, ok := s.values[key]
		if !ok {
			return nil, fmt.Errorf("unresolved state reference %q", key)
		}

		return v, nil
	case map[string]any:
		out := make(map[string]any, len(typed))

		for k, v := range typed {
			bound, err := s.bindValue(v)
			if err != nil {
				return nil, err
			}

			out[k] = bound
		}

		return out, nil
	case []any:
		out := make([]any, len(typed))

		for i, v := range typed {
			bound, err := s.bindValue(v)
			if err != nil {
				return nil, err
			}

			out[i] = bound
		}

		return out, nil
	default:
		return value, nil
	}
}

// SaveFromResponse extracts values from a response per the case's save map.
// Paths are dotted, rooted at "result", with numeric segments indexing
// arrays: result.transactions.0.hash.
func (s *State) SaveFromResponse(save map[string]string, result json.RawMessage) error {
	if len(save) == 0 {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(result, &decoded); err != nil {
		return fmt.Errorf("decoding result for state extraction: %w", err)
	}

	for key, path := range save {
		value, err := extractPath(decoded, path)
		if err != nil {
			return fmt.Errorf("extracting %s for state key %s: %w", path, key, err)
		}

		s.values[key] = value
	}

	return nil
}

func extractPath(value any, path string) (any, error) {
	segments := strings.Split(path, ".")

	if len(segments) > 0 && segments[0] == "result" {
		segments = segments[1:]
	}

	current := value

	for _, segment := range segments {
		switch typed := current.(type) {
		case map[string]any:
			v, ok := typed[segment]
			if !ok {
				return nil, fmt.Errorf("field %q not present", segment)
			}

			current = v
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil {
				return nil, fmt.Errorf("segment %q indexes an array", segment)
			}

			if idx < 0 || idx >= len(typed) {
				return nil, fmt.Errorf("index %d out of range", idx)
			}

			current = typed[idx]
		default:
			return nil, fmt.Errorf("segment %q traverses a scalar", segment)
		}
	}

	return current, nil
}
