// Package proxy implements a TLS-terminating JSON-RPC relay that presents
// one logical endpoint while routing each session to one or many real
// backends, with optional recording and differential comparison.
package proxy

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starkconform/starkconform/internal/rpc"
)

// Mode selects the proxy routing behavior.
type Mode string

const (
	// ModePassThrough forwards every request to a single upstream.
	ModePassThrough Mode = "pass-through"
	// ModeFanout duplicates every request to all upstreams and compares.
	ModeFanout Mode = "fanout"
)

const defaultUpstreamTimeout = 30 * time.Second

var (
	errNoListenAddr     = errors.New("listen_addr is required")
	errNoTargets        = errors.New("at least one target is required")
	errInvalidMode      = errors.New("mode must be pass-through or fanout")
	errTLSPairRequired  = errors.New("tls_cert and tls_key must be set together")
	errTargetURLMissing = errors.New("target missing url")
)

// Config is the proxy listener configuration.
type Config struct {
	ListenAddr string          `yaml:"listen_addr"`
	Mode       Mode            `yaml:"mode"`
	Targets    []*rpc.Endpoint `yaml:"targets"`

	// TLS termination material; when both are set the listener speaks TLS.
	TLSCert string `yaml:"tls_cert,omitempty"`
	TLSKey  string `yaml:"tls_key,omitempty"`

	// Record enables traffic capture to RecordPath as JSON lines.
	Record     bool   `yaml:"record,omitempty"`
	RecordPath string `yaml:"record_path,omitempty"`

	// FailOnDivergence replaces a divergent fan-out response with a
	// JSON-RPC error instead of only annotating it.
	FailOnDivergence bool `yaml:"fail_on_divergence,omitempty"`

	// IgnoreFields lists dynamic response fields (timestamps, latencies)
	// excluded from fan-out comparison at any nesting depth.
	IgnoreFields []string `yaml:"ignore_fields,omitempty"`

	// Hosts maps logical hostnames to concrete addresses so the proxy,
	// not the OS resolver, decides which backend a name reaches.
	Hosts map[string]string `yaml:"hosts,omitempty"`

	UpstreamTimeout Duration `yaml:"upstream_timeout,omitempty"`
}

// Duration wraps time.Duration so config files can use "30s"-style values.
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

// LoadConfig reads and validates a proxy configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: proxy config comes from operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("reading proxy config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing proxy config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration; any error is fatal at startup.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errNoListenAddr
	}

	if len(c.Targets) == 0 {
		return errNoTargets
	}

	for i, target := range c.Targets {
		if target.URL == "" {
			return fmt.Errorf("%w: index %d", errTargetURLMissing, i)
		}

		if target.Name == "" {
			target.Name = fmt.Sprintf("target-%d", i)
		}
	}

	switch c.Mode {
	case "":
		c.Mode = ModePassThrough
	case ModePassThrough, ModeFanout:
	default:
		return fmt.Errorf("%w: %q", errInvalidMode, c.Mode)
	}

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errTLSPairRequired
	}

	if c.Record && c.RecordPath == "" {
		c.RecordPath = "proxy-recording.jsonl"
	}

	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = Duration(defaultUpstreamTimeout)
	}

	return nil
}
