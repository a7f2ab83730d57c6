package suite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Loader loads suite definition files from a directory tree.
type Loader struct {
	baseDir string
	log     logrus.FieldLogger
}

// NewLoader creates a new suite definition loader.
func NewLoader(log logrus.FieldLogger, baseDir string) *Loader {
	return &Loader{
		baseDir: baseDir,
		log:     log.WithField("component", "suite_loader"),
	}
}

// Load reads and validates a single suite by name (<baseDir>/<name>.yaml).
func (l *Loader) Load(name string) (*Definition, error) {
	path := filepath.Join(l.baseDir, name+".yaml")

	l.log.WithFields(logrus.Fields{
		"suite": name,
		"path":  path,
	}).Debug("loading suite definition")

	def, err := l.loadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading suite %s: %w", name, err)
	}

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("validating suite %s: %w", name, err)
	}

	return def, nil
}

// LoadAll reads every suite definition in the base directory. Invalid files
// are skipped with a warning rather than failing the whole set.
func (l *Loader) LoadAll() ([]*Definition, error) {
	entries, err := os.ReadDir(l.baseDir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", l.baseDir, err)
	}

	defs := make([]*Definition, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		def, err := l.loadFile(filepath.Join(l.baseDir, entry.Name()))
		if err != nil {
			l.log.WithError(err).WithField("file", entry.Name()).Warn("failed to load suite, skipping")
			continue
		}

		if err := def.Validate(); err != nil {
			l.log.WithError(err).WithField("file", entry.Name()).Warn("invalid suite definition, skipping")
			continue
		}

		defs = append(defs, def)
	}

	return defs, nil
}

// Names lists the suite names available in the base directory.
func (l *Loader) Names() ([]string, error) {
	entries, err := os.ReadDir(l.baseDir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", l.baseDir, err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}

	return names, nil
}

func (l *Loader) loadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: reading suite definitions from trusted paths
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	return &def, nil
}
