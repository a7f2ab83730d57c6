// Package config handles configuration loading and management.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/starkconform/starkconform/internal/rpc"
)

// Config holds the application configuration.
type Config struct {
	Network          string
	Targets          string
	SuitesDir        string
	OpenRPCDoc       string
	Concurrency      int
	CaseRetries      int
	CaseTimeout      time.Duration
	RequestTimeout   time.Duration
	Exhaustive       bool
	FailOnDivergence bool
	ArtifactPath     string
	FixtureTools     string

	ClickhouseHost       string
	ClickhouseNativePort int
	ClickhouseUsername   string
	ClickhousePassword   string
	ClickhouseCluster    string
	ClickhouseDatabase   string
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Network:            getEnv("NETWORK", "mainnet"),
		Targets:            getEnv("TARGETS", "http://localhost:9545"),
		SuitesDir:          getEnv("SUITES_DIR", "suites"),
		OpenRPCDoc:         getEnv("OPENRPC_DOC", "specs/starknet_api_openrpc.json"),
		Exhaustive:         getEnvBool("EXHAUSTIVE_VALIDATION", false),
		FailOnDivergence:   getEnvBool("FAIL_ON_DIVERGENCE", false),
		ArtifactPath:       getEnv("ARTIFACT_PATH", ""),
		FixtureTools:       getEnv("FIXTURE_TOOLS", ""),
		ClickhouseHost:     getEnv("CLICKHOUSE_HOST", ""),
		ClickhouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickhousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
		ClickhouseCluster:  getEnv("CLICKHOUSE_CLUSTER", ""),
		ClickhouseDatabase: getEnv("CLICKHOUSE_DATABASE", "starkconform"),
	}

	concurrency, err := strconv.Atoi(getEnv("CONCURRENCY", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONCURRENCY: %w", err)
	}
	cfg.Concurrency = concurrency

	retries, err := strconv.Atoi(getEnv("CASE_RETRIES", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid CASE_RETRIES: %w", err)
	}
	cfg.CaseRetries = retries

	caseTimeout, err := time.ParseDuration(getEnv("CASE_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CASE_TIMEOUT: %w", err)
	}
	cfg.CaseTimeout = caseTimeout

	requestTimeout, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	cfg.RequestTimeout = requestTimeout

	nativePort, err := strconv.Atoi(getEnv("CLICKHOUSE_NATIVE_PORT", "9000"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLICKHOUSE_NATIVE_PORT: %w", err)
	}
	cfg.ClickhouseNativePort = nativePort

	return cfg, nil
}

// ParseTargets expands the TARGETS value into endpoints. Entries are comma
// separated, each either a bare URL or name=url.
func (c *Config) ParseTargets() ([]*rpc.Endpoint, error) {
	entries := strings.Split(c.Targets, ",")
	endpoints := make([]*rpc.Endpoint, 0, len(entries))

	for i, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, url, found := strings.Cut(entry, "=")
		if !found {
			url = entry
			name = fmt.Sprintf("target-%d", i)
		}

		if !strings.Contains(url, "://") {
			return nil, fmt.Errorf("invalid target %q: missing scheme", entry)
		}

		endpoints = append(endpoints, &rpc.Endpoint{Name: name, URL: url})
	}

	if len(endpoints) == 0 {
		return nil, fmt.Errorf("TARGETS is empty")
	}

	return endpoints, nil
}

// SinkEnabled reports whether a ClickHouse results sink is configured.
func (c *Config) SinkEnabled() bool {
	return c.ClickhouseHost != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func (c *Config) String() string {
	passwordDisplay := "(not set)"
	if c.ClickhousePassword != "" {
		passwordDisplay = "********"
	}

	sinkDisplay := "(disabled)"
	if c.SinkEnabled() {
		sinkDisplay = fmt.Sprintf("%s:%d/%s", c.ClickhouseHost, c.ClickhouseNativePort, c.ClickhouseDatabase)
	}

	clusterDisplay := c.ClickhouseCluster
	if clusterDisplay == "" {
		clusterDisplay = "(single-node)"
	}

	return fmt.Sprintf(`Current Configuration:
======================
Network:                  %s
Targets:                  %s
Suites Directory:         %s
OpenRPC Document:         %s
Concurrency:              %d
Case Retries:             %d
Case Timeout:             %s
Request Timeout:          %s
Exhaustive Validation:    %t
Fail On Divergence:       %t
ClickHouse Sink:          %s
ClickHouse Username:      %s
ClickHouse Password:      %s
ClickHouse Cluster:       %s`,
		c.Network,
		c.Targets,
		c.SuitesDir,
		c.OpenRPCDoc,
		c.Concurrency,
		c.CaseRetries,
		c.CaseTimeout,
		c.RequestTimeout,
		c.Exhaustive,
		c.FailOnDivergence,
		sinkDisplay,
		c.ClickhouseUsername,
		passwordDisplay,
		clusterDisplay,
	)
}
