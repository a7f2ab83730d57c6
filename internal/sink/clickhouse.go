// Package sink persists conformance run results to ClickHouse for trend
// analysis across runs.
package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/starkconform/starkconform/internal/config"
	"github.com/starkconform/starkconform/internal/suite"
)

// Sink writes flattened case results to a ClickHouse table.
type Sink struct {
	log      logrus.FieldLogger
	conn     driver.Conn
	database string
	network  string
	cluster  string
}

// New opens a native-protocol connection from application configuration.
func New(log logrus.FieldLogger, cfg *config.Config) (*Sink, error) {
	// Connect against the default database; the results database is
	// created on Start.
	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.ClickhouseHost, cfg.ClickhouseNativePort)},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: cfg.ClickhouseUsername,
			Password: cfg.ClickhousePassword,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     time.Second * 30,
		MaxOpenConns:    5,
		MaxIdleConns:    5,
		ConnMaxLifetime: 10 * time.Minute,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}

	return &Sink{
		log:      log.WithField("component", "sink"),
		conn:     conn,
		database: cfg.ClickhouseDatabase,
		network:  cfg.Network,
		cluster:  cfg.ClickhouseCluster,
	}, nil
}

// Start verifies connectivity and ensures the results database exists.
func (s *Sink) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.conn.Ping(pingCtx); err != nil {
		return fmt.Errorf("pinging clickhouse: %w", err)
	}

	query := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", s.database)
	if s.cluster != "" {
		query = fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` ON CLUSTER '%s'", s.database, s.cluster)
	}

	if err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("creating database: %w", err)
	}

	s.log.WithField("database", s.database).Info("sink started")

	return nil
}

// Stop closes the connection.
func (s *Sink) Stop() error {
	return s.conn.Close()
}

// InsertRun flattens the result tree into one row per case and writes them
// as a single batch.
func (s *Sink) InsertRun(ctx context.Context, run *suite.RunResult) error {
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s.conformance_results (
			run_id, network, started_at, target, suite, case_name, method,
			verdict, detail, optional, attempts, duration_ms, divergence
		)`, fmt.Sprintf("`%s`", s.database)))
	if err != nil {
		return fmt.Errorf("preparing batch: %w", err)
	}

	rows := 0

	for _, target := range run.Targets {
		target.Walk(func(st *suite.SuiteResult, res *suite.CaseResult) {
			optional := uint8(0)
			if res.Optional {
				optional = 1
			}

			if appendErr := batch.Append(
				run.RunID,
				s.network,
				run.StartedAt,
				res.Target,
				st.Name,
				res.Name,
				res.Method,
				string(res.Verdict),
				res.Detail,
				optional,
				uint32(res.Attempts), //nolint:gosec // G115: attempts is a small retry counter
				uint64(res.Duration.Milliseconds()), //nolint:gosec // G115: durations are non-negative
				res.Divergence,
			); appendErr != nil && err == nil {
				err = appendErr
			}

			rows++
		})
	}

	if err != nil {
		return fmt.Errorf("appending rows: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending batch: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"run_id": run.RunID,
		"rows":   rows,
	}).Info("run persisted")

	return nil
}
