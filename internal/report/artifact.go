package report

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/starkconform/starkconform/internal/suite"
)

// WriteArtifact writes the full result tree, raw request/response pairs
// included, as an indented JSON file for post-mortem analysis.
func WriteArtifact(path string, run *suite.RunResult) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run artifact: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: run artifacts are not sensitive
		return fmt.Errorf("writing run artifact: %w", err)
	}

	return nil
}
