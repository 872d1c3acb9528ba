// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

// Package historian is the bundled DuckDB publish backend. It satisfies the
// publish.Sink contract: a batch is inserted in one transaction with
// ON CONFLICT DO NOTHING on the (topic, ts) key, so re-published batches
// after a timeout stay idempotent, and the receipt reports all handled only
// after the commit. A circuit breaker around the insert path fails fast
// into the scheduler's backoff when the database is unhealthy.
package historian

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/annalist-io/annalist/internal/logging"
	"github.com/annalist-io/annalist/internal/metrics"
	"github.com/annalist-io/annalist/internal/publish"
	"github.com/annalist-io/annalist/internal/record"
)

// Historian wraps the DuckDB connection behind the publish.Sink contract.
type Historian struct {
	conn    *sql.DB
	config  Config
	breaker *gobreaker.CircuitBreaker[interface{}]
}

// Open creates the historian database connection and initializes the schema.
func Open(cfg *Config) (*Historian, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid historian config: %w", err)
	}

	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for the database file
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("create historian directory %s: %w", dbDir, err)
		}
	}

	// preserve_insertion_order=false reduces memory usage but may change
	// result order
	preserveOrder := "true"
	if !cfg.PreserveInsertionOrder {
		preserveOrder = "false"
	}
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&preserve_insertion_order=%s",
		cfg.Path, numThreads, cfg.MaxMemory, preserveOrder)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open historian database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = conn.PingContext(pingCtx)
	cancel()
	if err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("ping historian database: %w", err)
	}

	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	h := &Historian{
		conn:    conn,
		config:  *cfg,
		breaker: newBreaker(cfg.Breaker),
	}

	if err := h.createTables(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("initialize historian schema: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", numThreads).
		Str("max_memory", cfg.MaxMemory).
		Msg("Historian database opened")

	return h, nil
}

// createTables creates the records table and its indexes.
//
// Identity is (topic, ts): two publishes of the same observation collapse
// into one row no matter which spool assigned which cache id. stored_at is
// set by the inserting process; a DEFAULT CURRENT_TIMESTAMP column would
// drag in the ICU extension during WAL replay.
func (h *Historian) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := `CREATE TABLE IF NOT EXISTS records (
		topic      VARCHAR NOT NULL,
		ts         TIMESTAMP NOT NULL,
		cache_id   UBIGINT NOT NULL,
		source     VARCHAR NOT NULL,
		time_error BOOLEAN NOT NULL DEFAULT FALSE,
		value      VARCHAR,
		headers    VARCHAR,
		meta       VARCHAR,
		stored_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (topic, ts)
	)`
	if _, err := h.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create records table: %w", err)
	}

	index := `CREATE INDEX IF NOT EXISTS idx_records_source ON records(source)`
	if _, err := h.conn.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("create source index: %w", err)
	}

	return nil
}

// PublishToHistorian implements publish.Sink. The whole batch commits in one
// transaction; the receipt reports all handled only after the commit, so a
// failure leaves every record spooled for retry.
func (h *Historian) PublishToHistorian(ctx context.Context, batch []*record.Record, receipt *publish.Receipt) error {
	if len(batch) == 0 {
		receipt.ReportAllHandled()
		return nil
	}

	start := time.Now()

	var inserted, duplicates int
	_, err := h.breaker.Execute(func() (interface{}, error) {
		var insErr error
		inserted, duplicates, insErr = h.insertBatch(ctx, batch)
		return nil, insErr
	})
	if err != nil {
		metrics.RecordHistorianInsertError()
		return err
	}

	metrics.RecordHistorianInsert(time.Since(start), inserted, duplicates)
	logging.Debug().
		Int("inserted", inserted).
		Int("duplicates", duplicates).
		Int("batch", len(batch)).
		Dur("duration", time.Since(start)).
		Msg("Historian batch committed")

	receipt.ReportAllHandled()
	return nil
}

// insertBatch inserts all records in a single transaction.
func (h *Historian) insertBatch(ctx context.Context, batch []*record.Record) (inserted int, duplicates int, err error) {
	tx, err := h.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}

	// Ensure transaction is finalized
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().
					Err(rbErr).
					AnErr("original_error", err).
					Msg("Historian rollback failed")
			}
		}
	}()

	query := `INSERT INTO records (
		topic, ts, cache_id, source, time_error,
		value, headers, meta, stored_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare statement: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("Failed to close prepared statement")
		}
	}()

	storedAt := time.Now().UTC()
	for i, rec := range batch {
		headers, meta, encErr := encodeAttachments(rec)
		if encErr != nil {
			err = fmt.Errorf("encode record %d (id=%d): %w", i, rec.ID, encErr)
			return 0, 0, err
		}

		result, execErr := stmt.ExecContext(ctx,
			rec.Topic, rec.Timestamp.UTC(), rec.ID, string(rec.Source), rec.TimeError,
			nullable(string(rec.Value)), headers, meta, storedAt,
		)
		if execErr != nil {
			err = fmt.Errorf("insert record %d (id=%d topic=%s): %w", i, rec.ID, rec.Topic, execErr)
			return 0, 0, err
		}

		// With ON CONFLICT DO NOTHING, no error is returned for duplicates
		rowsAffected, rowsErr := result.RowsAffected()
		if rowsErr == nil && rowsAffected == 0 {
			duplicates++
		} else {
			inserted++
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit transaction: %w", err)
	}

	return inserted, duplicates, nil
}

// encodeAttachments serializes headers and meta to JSON text, or NULL when
// empty.
func encodeAttachments(rec *record.Record) (headers any, meta any, err error) {
	if len(rec.Headers) > 0 {
		b, mErr := json.Marshal(rec.Headers)
		if mErr != nil {
			return nil, nil, fmt.Errorf("headers: %w", mErr)
		}
		headers = string(b)
	}
	if len(rec.Meta) > 0 {
		b, mErr := json.Marshal(rec.Meta)
		if mErr != nil {
			return nil, nil, fmt.Errorf("meta: %w", mErr)
		}
		meta = string(b)
	}
	return headers, meta, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Count returns the number of stored records, for the ops surface.
func (h *Historian) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := h.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// Ping verifies the database connection for readiness checks.
func (h *Historian) Ping(ctx context.Context) error {
	if h.conn == nil {
		return fmt.Errorf("historian connection is nil")
	}
	return h.conn.PingContext(ctx)
}

// BreakerState returns the circuit breaker state for the ops surface.
func (h *Historian) BreakerState() string {
	return h.breaker.State().String()
}

// Close checkpoints and closes the database.
func (h *Historian) Close() error {
	if h.conn == nil {
		return nil
	}

	// Flush the WAL so the next open does not have to replay it.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := h.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint historian before close")
	}
	cancel()

	if err := h.conn.Close(); err != nil {
		return fmt.Errorf("close historian database: %w", err)
	}

	logging.Info().Msg("Historian database closed")
	return nil
}

func closeQuietly(conn *sql.DB) {
	_ = conn.Close()
}
