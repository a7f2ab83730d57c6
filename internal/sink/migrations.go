package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse" // clickhouse driver for migrations
	_ "github.com/golang-migrate/migrate/v4/source/file"         // file source driver for migrations
	"github.com/sirupsen/logrus"

	"github.com/starkconform/starkconform/internal/config"
)

const migrationsDir = "migrations"

// Migrate prepares migration files by substituting the results database name
// and applies any pending migrations.
func Migrate(log logrus.FieldLogger, cfg *config.Config) error {
	tempDir, err := os.MkdirTemp("", "starkconform-migrations-*")
	if err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}

	defer func() {
		_ = os.RemoveAll(tempDir)
	}()

	if procErr := processMigrationFiles(migrationsDir, tempDir, cfg.ClickhouseDatabase); procErr != nil {
		return fmt.Errorf("processing migration files: %w", procErr)
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", tempDir), buildConnectionString(cfg))
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	defer func() {
		if _, closeErr := m.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("failed to close migration instance")
		}
	}()

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", upErr)
	}

	if errors.Is(upErr, migrate.ErrNoChange) {
		log.Info("no new migrations to apply")

		return nil
	}

	version, dirty, vErr := m.Version()
	if vErr != nil && !errors.Is(vErr, migrate.ErrNilVersion) {
		return fmt.Errorf("reading migration version: %w", vErr)
	}

	if !dirty {
		log.WithField("version", version).Info("migrations applied")
	}

	return nil
}

// processMigrationFiles copies migration files from source to dest,
// substituting ${DATABASE}.
func processMigrationFiles(sourceDir, destDir, database string) error {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		sourcePath := filepath.Join(sourceDir, entry.Name())

		content, err := os.ReadFile(sourcePath) //nolint:gosec // G304: sourcePath is constructed from known directory
		if err != nil {
			return fmt.Errorf("reading %s: %w", sourcePath, err)
		}

		processed := strings.ReplaceAll(string(content), "${DATABASE}", database)

		destPath := filepath.Join(destDir, entry.Name())
		if err := os.WriteFile(destPath, []byte(processed), 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", destPath, err)
		}
	}

	return nil
}

// buildConnectionString builds the ClickHouse connection string for
// golang-migrate.
func buildConnectionString(cfg *config.Config) string {
	connStr := fmt.Sprintf("clickhouse://%s:%d?username=%s&database=%s&x-multi-statement=true",
		cfg.ClickhouseHost,
		cfg.ClickhouseNativePort,
		cfg.ClickhouseUsername,
		cfg.ClickhouseDatabase,
	)

	if cfg.ClickhousePassword != "" {
		connStr += fmt.Sprintf("&password=%s", cfg.ClickhousePassword)
	}

	if cfg.ClickhouseCluster != "" {
		connStr += fmt.Sprintf("&x-cluster-name=%s&x-migrations-table-engine=ReplicatedMergeTree", cfg.ClickhouseCluster)
	} else {
		connStr += "&x-migrations-table-engine=MergeTree"
	}

	return connStr
}
