/**
 * PostgreSQL store for the table scan worker
 *
 * Persists export records, including the rendered CSV, in tablescan.export_jobs.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const schemaSQL = `
	CREATE SCHEMA IF NOT EXISTS tablescan;

	CREATE TABLE IF NOT EXISTS tablescan.export_jobs (
		id                 UUID PRIMARY KEY,
		status             TEXT NOT NULL,
		channel_id         TEXT,
		request            JSONB NOT NULL DEFAULT '{}'::jsonb,
		message_ids        TEXT[] NOT NULL DEFAULT '{}',
		image_count        INTEGER NOT NULL DEFAULT 0,
		row_count          INTEGER NOT NULL DEFAULT 0,
		failures           JSONB,
		filename           TEXT,
		csv                BYTEA,
		error_code         TEXT,
		error_message      TEXT,
		processing_time_ms BIGINT,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS export_jobs_status_idx ON tablescan.export_jobs (status);
`

// PostgresStore handles database operations
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Migrate creates the schema and table if they do not exist
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Put implements Store. The first write creates the row; later writes update
// everything except created_at.
func (p *PostgresStore) Put(ctx context.Context, rec *ExportRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("export ID is required")
	}
	if rec.Status == "" {
		return fmt.Errorf("status is required")
	}

	request := []byte(rec.Request)
	if len(request) == 0 {
		request = []byte("{}")
	}
	var failures []byte
	if len(rec.Failures) > 0 {
		failures = rec.Failures
	}

	query := `
		INSERT INTO tablescan.export_jobs (
			id, status, channel_id, request, message_ids, image_count, row_count,
			failures, filename, csv, error_code, error_message, processing_time_ms,
			created_at, updated_at
		) VALUES (
			$1::uuid, $2, NULLIF($3, ''), $4::jsonb, $5, $6, $7,
			$8::jsonb, NULLIF($9, ''), $10, NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, 0),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			channel_id = COALESCE(EXCLUDED.channel_id, tablescan.export_jobs.channel_id),
			request = EXCLUDED.request,
			message_ids = EXCLUDED.message_ids,
			image_count = EXCLUDED.image_count,
			row_count = EXCLUDED.row_count,
			failures = EXCLUDED.failures,
			filename = COALESCE(EXCLUDED.filename, tablescan.export_jobs.filename),
			csv = EXCLUDED.csv,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			processing_time_ms = EXCLUDED.processing_time_ms,
			updated_at = NOW()
	`

	_, err := p.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.Status),
		rec.ChannelID,
		string(request),
		pq.Array(nonNil(rec.MessageIDs)),
		rec.Images,
		rec.Rows,
		nullableJSON(failures),
		rec.Filename,
		rec.CSV,
		rec.ErrorCode,
		rec.ErrorMessage,
		rec.ProcessingTimeMs,
	)
	if err != nil {
		return fmt.Errorf("failed to store export %s: %w", rec.ID, err)
	}
	return nil
}

// Get implements Store
func (p *PostgresStore) Get(ctx context.Context, id string) (*ExportRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("export ID is required")
	}

	query := `
		SELECT
			id, status, channel_id, request, message_ids, image_count, row_count,
			failures, filename, csv, error_code, error_message, processing_time_ms,
			created_at, updated_at
		FROM tablescan.export_jobs
		WHERE id = $1::uuid
	`

	var (
		rec                     ExportRecord
		status                  string
		channelID, filename     sql.NullString
		errorCode, errorMessage sql.NullString
		processingTimeMs        sql.NullInt64
		request, failures       []byte
	)

	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &status, &channelID, &request, pq.Array(&rec.MessageIDs), &rec.Images, &rec.Rows,
		&failures, &filename, &rec.CSV, &errorCode, &errorMessage, &processingTimeMs,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get export %s: %w", id, err)
	}

	rec.Status = Status(status)
	rec.ChannelID = channelID.String
	rec.Request = request
	rec.Failures = failures
	rec.Filename = filename.String
	rec.ErrorCode = errorCode.String
	rec.ErrorMessage = errorMessage.String
	rec.ProcessingTimeMs = processingTimeMs.Int64

	return &rec, nil
}

// Delete implements Store
func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM tablescan.export_jobs WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("failed to delete export %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresStore) GetStats() sql.DBStats {
	return p.db.Stats()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
