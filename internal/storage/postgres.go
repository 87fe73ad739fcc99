/**
 * PostgreSQL Store for the identity extraction worker
 *
 * Handles persistence of resolved identity records and extraction job
 * status.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrJobNotFound is returned by GetJob for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Job statuses
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const schemaSQL = `
	CREATE SCHEMA IF NOT EXISTS idextract;

	CREATE TABLE IF NOT EXISTS idextract.records (
		id              BIGSERIAL PRIMARY KEY,
		job_id          UUID,
		name            TEXT NOT NULL DEFAULT '',
		father_name     TEXT NOT NULL DEFAULT '',
		dob             DATE,
		age             INTEGER,
		confidence_meta JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS idextract.extraction_jobs (
		id                 UUID PRIMARY KEY,
		status             TEXT NOT NULL,
		record_id          BIGINT REFERENCES idextract.records(id),
		processing_time_ms BIGINT,
		error_code         TEXT,
		error_message      TEXT,
		metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Status           string
	RecordID         int64
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// Job is the stored status of one extraction job
type Job struct {
	ID               string                 `json:"id"`
	Status           string                 `json:"status"`
	RecordID         int64                  `json:"record_id,omitempty"`
	ProcessingTimeMs int64                  `json:"processing_time_ms,omitempty"`
	ErrorCode        string                 `json:"error_code,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// NewPostgresStore connects to PostgreSQL
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connect to database
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db, now: time.Now}, nil
}

// NewPostgresStoreFromDB wraps an existing handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// SetClock replaces the clock ages are derived against when listing.
func (p *PostgresStore) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// EnsureSchema creates the schema and tables when missing
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", describe(err))
	}
	return nil
}

// UpdateJobStatus upserts the job row
func (p *PostgresStore) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := marshalJSONB(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	// UPSERT so the worker can create the row if the submitter did not
	query := `
		INSERT INTO idextract.extraction_jobs (
			id, status, record_id, processing_time_ms,
			error_code, error_message, metadata,
			created_at, updated_at
		) VALUES (
			$1::uuid, $2, NULLIF($3, 0), NULLIF($4, 0),
			NULLIF($5, ''), NULLIF($6, ''), COALESCE($7::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			record_id = COALESCE(EXCLUDED.record_id, idextract.extraction_jobs.record_id),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, idextract.extraction_jobs.processing_time_ms),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = idextract.extraction_jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1 - job_id
		update.Status,           // $2 - status
		update.RecordID,         // $3 - record_id
		update.ProcessingTimeMs, // $4 - processing_time_ms
		update.ErrorCode,        // $5 - error_code
		update.ErrorMessage,     // $6 - error_message
		metadataJSON,            // $7 - metadata
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, describe(err))
	}

	return nil
}

// GetJob retrieves a job by ID
func (p *PostgresStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id,
			status,
			record_id,
			processing_time_ms,
			error_code,
			error_message,
			metadata,
			created_at,
			updated_at
		FROM idextract.extraction_jobs
		WHERE id = $1::uuid
	`

	var (
		job                     Job
		recordID, processingMs  sql.NullInt64
		errorCode, errorMessage sql.NullString
		metadataJSON            []byte
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID, &job.Status, &recordID, &processingMs,
		&errorCode, &errorMessage, &metadataJSON,
		&job.CreatedAt, &job.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", describe(err))
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &job.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	job.RecordID = recordID.Int64
	job.ProcessingTimeMs = processingMs.Int64
	job.ErrorCode = errorCode.String
	job.ErrorMessage = errorMessage.String

	return &job, nil
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

// describe adds the SQLSTATE condition name to PostgreSQL errors.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s (%s): %w", pqErr.Code.Name(), pqErr.Code, err)
	}
	return err
}
