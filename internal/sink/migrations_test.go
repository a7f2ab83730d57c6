package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkconform/starkconform/internal/config"
)

func TestProcessMigrationFiles(t *testing.T) {
	sourceDir := t.TempDir()
	destDir := t.TempDir()

	source := "CREATE TABLE `${DATABASE}`.conformance_results (run_id String) ENGINE = MergeTree() ORDER BY run_id;"
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "000001_test.up.sql"), []byte(source), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "notes.txt"), []byte("ignored"), 0o600))

	require.NoError(t, processMigrationFiles(sourceDir, destDir, "starkconform"))

	processed, err := os.ReadFile(filepath.Join(destDir, "000001_test.up.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(processed), "`starkconform`.conformance_results")
	assert.NotContains(t, string(processed), "${DATABASE}")

	_, err = os.Stat(filepath.Join(destDir, "notes.txt"))
	assert.True(t, os.IsNotExist(err), "non-sql files are not copied")
}

func TestBuildConnectionString(t *testing.T) {
	tests := []struct {
		name     string
		config   *config.Config
		contains []string
		excludes []string
	}{
		{
			name: "single node",
			config: &config.Config{
				ClickhouseHost:       "localhost",
				ClickhouseNativePort: 9000,
				ClickhouseUsername:   "default",
				ClickhouseDatabase:   "starkconform",
			},
			contains: []string{
				"clickhouse://localhost:9000",
				"database=starkconform",
				"x-migrations-table-engine=MergeTree",
			},
			excludes: []string{"password", "x-cluster-name"},
		},
		{
			name: "clustered with password",
			config: &config.Config{
				ClickhouseHost:       "ch.internal",
				ClickhouseNativePort: 9440,
				ClickhouseUsername:   "writer",
				ClickhousePassword:   "hunter2",
				ClickhouseCluster:    "main",
				ClickhouseDatabase:   "starkconform",
			},
			contains: []string{
				"password=hunter2",
				"x-cluster-name=main",
				"x-migrations-table-engine=ReplicatedMergeTree",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connStr := buildConnectionString(tt.config)

			for _, want := range tt.contains {
				assert.Contains(t, connStr, want)
			}

			for _, unwanted := range tt.excludes {
				assert.NotContains(t, connStr, unwanted)
			}
		})
	}
}
