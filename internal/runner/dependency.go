package runner

import (
	"errors"
	"fmt"

	"github.com/starkconform/starkconform/internal/suite"
)

var errDependencyCycle = errors.New("dependency cycle between cases")

// executionLevels resolves a suite's declared intra-suite dependencies into
// a topological execution order, grouped into levels. Cases within a level
// have no dependencies on each other and may run concurrently; levels run in
// order. Setup hooks are treated as already-satisfied dependencies since
// they run before any case.
func executionLevels(def *suite.Definition) ([][]*suite.CaseDef, error) {
	satisfied := make(map[string]bool, len(def.Setup))
	for _, hook := range def.Setup {
		satisfied[hook.Name] = true
	}

	remaining := make([]*suite.CaseDef, len(def.Cases))
	copy(remaining, def.Cases)

	levels := make([][]*suite.CaseDef, 0, 1)

	for len(remaining) > 0 {
		var (
			level []*suite.CaseDef
			next  []*suite.CaseDef
		)

		for _, c := range remaining {
			if dependenciesMet(c, satisfied) {
				level = append(level, c)
			} else {
				next = append(next, c)
			}
		}

		if len(level) == 0 {
			names := make([]string, 0, len(next))
			for _, c := range next {
				names = append(names, c.Name)
			}

			return nil, fmt.Errorf("%w: %v", errDependencyCycle, names)
		}

		for _, c := range level {
			satisfied[c.Name] = true
		}

		levels = append(levels, level)
		remaining = next
	}

	return levels, nil
}

func dependenciesMet(c *suite.CaseDef, satisfied map[string]bool) bool {
	for _, dep := range c.DependsOn {
		if !satisfied[dep] {
			return false
		}
	}

	return true
}
