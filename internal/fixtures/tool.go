// Package fixtures invokes external fixture-generation tools (state
// transition, transaction validation, block building) as subprocesses and
// consumes their JSON output as case input. The tools' logic is never
// reimplemented here.
package fixtures

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultToolTimeout = 2 * time.Minute

// Tool describes one external fixture binary.
type Tool struct {
	Name   string   `yaml:"name"`
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args,omitempty"`
}

// Registry resolves fixture tool names to runnable binaries.
type Registry struct {
	log   logrus.FieldLogger
	tools map[string]*Tool
}

// NewRegistry creates a fixture tool registry.
func NewRegistry(log logrus.FieldLogger, tools []*Tool) *Registry {
	byName := make(map[string]*Tool, len(tools))
	for _, tool := range tools {
		byName[tool.Name] = tool
	}

	return &Registry{
		log:   log.WithField("component", "fixture_registry"),
		tools: byName,
	}
}

// Generate runs the named tool against an input fixture file and decodes its
// stdout as a JSON parameter list.
func (r *Registry) Generate(ctx context.Context, name, input string, extraArgs []string) ([]any, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("fixture tool %q is not configured", name)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultToolTimeout)
	defer cancel()

	args := make([]string, 0, len(tool.Args)+len(extraArgs)+2)
	args = append(args, tool.Args...)

	if input != "" {
		args = append(args, "--input", input)
	}

	args = append(args, extraArgs...)

	r.log.WithFields(logrus.Fields{
		"tool":  name,
		"input": input,
	}).Debug("running fixture tool")

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, tool.Binary, args...) //nolint:gosec // G204: tool binaries come from operator config
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("running fixture tool %s: %w (stderr: %s)", name, err, stderr.String())
	}

	var params []any
	if err := json.Unmarshal(stdout.Bytes(), &params); err != nil {
		return nil, fmt.Errorf("decoding fixture tool %s output: %w", name, err)
	}

	return params, nil
}
