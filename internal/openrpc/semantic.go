package openrpc

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// ChainObserver tracks cross-call invariants within a single suite run.
// Block numbers observed on the same target must never regress: the chain
// tip only moves forward while a run is in flight.
type ChainObserver struct {
	mu        sync.Mutex
	lastBlock map[string]uint64
}

// NewChainObserver creates an observer scoped to one suite run.
func NewChainObserver() *ChainObserver {
	return &ChainObserver{lastBlock: make(map[string]uint64)}
}

// Observe extracts a block number from a result, if one is present, and
// checks it against the last value seen for the target. It returns a
// semantic violation on regression, nil otherwise.
func (c *ChainObserver) Observe(target, method string, result json.RawMessage) *Violation {
	number, ok := extractBlockNumber(method, result)
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	last, seen := c.lastBlock[target]
	if seen && number < last {
		return &Violation{
			Kind:   KindSemantic,
			Field:  "block_number",
			Detail: fmt.Sprintf("block number regressed on %s: %d after %d", target, number, last),
		}
	}

	if !seen || number > last {
		c.lastBlock[target] = number
	}

	return nil
}

// extractBlockNumber pulls a block number out of a result value. Two shapes
// are recognized: a bare integer result from *_blockNumber methods, and a
// "block_number" field at the root of an object result.
func extractBlockNumber(method string, result json.RawMessage) (uint64, bool) {
	if strings.HasSuffix(method, "_blockNumber") {
		var n uint64
		if err := json.Unmarshal(result, &n); err == nil {
			return n, true
		}

		return 0, false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(result, &obj); err != nil {
		return 0, false
	}

	raw, ok := obj["block_number"]
	if !ok {
		return 0, false
	}

	var n uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}

	return n, true
}
