/**
 * Identity record persistence
 *
 * The extraction core only needs insert-one and list-recent; the job
 * status calls serve the queue worker and the HTTP API.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/adverant/nexus/idextract-worker/internal/dates"
)

// RecordStore persists resolved records
type RecordStore interface {
	InsertRecord(ctx context.Context, rec *RecordInput) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]StoredRecord, error)
}

// JobStore tracks extraction job status
type JobStore interface {
	UpdateJobStatus(ctx context.Context, update *JobUpdate) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
}

// Store is everything the worker persists
type Store interface {
	RecordStore
	JobStore
	Ping(ctx context.Context) error
	Close() error
}

// RecordInput is a record to insert. DOB is DD/MM/YYYY or empty; age is
// stored only alongside a DOB.
type RecordInput struct {
	JobID          string
	Name           string
	FatherName     string
	DOB            string
	Age            int
	ConfidenceMeta interface{}
}

// StoredRecord is a persisted record
type StoredRecord struct {
	ID         int64     `json:"id"`
	JobID      string    `json:"job_id,omitempty"`
	Name       string    `json:"name"`
	FatherName string    `json:"father_name"`
	DOB        string    `json:"dob"`
	Age        int       `json:"age"`
	CreatedAt  time.Time `json:"created_at"`
}

// InsertRecord stores one record and returns its id
func (p *PostgresStore) InsertRecord(ctx context.Context, rec *RecordInput) (int64, error) {
	if rec == nil {
		return 0, fmt.Errorf("record is required")
	}

	dob, age, err := dobColumns(rec.DOB, rec.Age)
	if err != nil {
		return 0, err
	}

	metaJSON, err := marshalJSONB(rec.ConfidenceMeta)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal confidence metadata: %w", err)
	}

	query := `
		INSERT INTO idextract.records (
			job_id, name, father_name, dob, age, confidence_meta, created_at
		) VALUES (
			CASE WHEN $1 = '' THEN NULL ELSE $1::uuid END,
			$2, $3, $4, $5, COALESCE($6::jsonb, '{}'::jsonb), NOW()
		)
		RETURNING id
	`

	var id int64
	err = p.db.QueryRowContext(ctx, query,
		rec.JobID,      // $1 - job_id
		rec.Name,       // $2 - name
		rec.FatherName, // $3 - father_name
		dob,            // $4 - dob
		age,            // $5 - age
		metaJSON,       // $6 - confidence_meta
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert record: %w", describe(err))
	}

	return id, nil
}

// ListRecent returns up to limit records, newest first. Age is derived
// from the stored DOB on every read; the age column only records the
// value at insert time.
func (p *PostgresStore) ListRecent(ctx context.Context, limit int) ([]StoredRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	query := `
		SELECT id, job_id, name, father_name, dob, created_at
		FROM idextract.records
		ORDER BY id DESC
		LIMIT $1
	`

	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", describe(err))
	}
	defer rows.Close()

	today := p.now()
	records := make([]StoredRecord, 0, limit)
	for rows.Next() {
		var (
			rec   StoredRecord
			jobID sql.NullString
			dob   sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &jobID, &rec.Name, &rec.FatherName, &dob, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.JobID = jobID.String
		if dob.Valid {
			rec.DOB = dates.FormatDOB(dob.Time)
			rec.Age = dates.Age(dob.Time, today)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return records, nil
}

// dobColumns converts the DD/MM/YYYY form to DATE and pairs age with it.
func dobColumns(dob string, age int) (sql.NullTime, sql.NullInt64, error) {
	if dob == "" {
		return sql.NullTime{}, sql.NullInt64{}, nil
	}
	t, ok := dates.ParseDOB(dob)
	if !ok {
		return sql.NullTime{}, sql.NullInt64{}, fmt.Errorf("invalid dob %q: want DD/MM/YYYY", dob)
	}
	return sql.NullTime{Time: t, Valid: true}, sql.NullInt64{Int64: int64(age), Valid: true}, nil
}

var (
	reNullEscape    = regexp.MustCompile(`\\u0000`)
	reControlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

var emptyObject = []byte("{}")

// marshalJSONB encodes v for a JSONB column, using {} for nil values.
// PostgreSQL rejects \u0000 and OCR text can carry control characters,
// so those escapes are dropped or replaced by a space.
func marshalJSONB(v interface{}) ([]byte, error) {
	if v == nil {
		return emptyObject, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return emptyObject, nil
	}
	data = reNullEscape.ReplaceAll(data, []byte{})
	return reControlEscape.ReplaceAll(data, []byte(" ")), nil
}
