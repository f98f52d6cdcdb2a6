// Package store archives sealed record artifacts for audit.
//
// The archive is an index, not the system of record: the artifact itself
// travels with the data it describes, the archive keeps enough metadata to
// answer "what did this service seal, when, and with which key". The archive
// is optional - when no DATABASE_URL is configured the service runs without it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an archived record does not exist.
var ErrNotFound = errors.New("record not found")

type RecordType string

const (
	RecordTypeEDP RecordType = "edp"
	RecordTypeCAP RecordType = "cap"
)

// ArchivedRecord is the audit index entry for one sealed artifact.
type ArchivedRecord struct {
	ID             string     `json:"id"`
	RecordType     RecordType `json:"recordType"`
	TrustFramework string     `json:"trustFramework"`
	StepCount      int        `json:"stepCount"`
	SignerKeyID    string     `json:"signerKeyId"`
	ArtifactSHA256 string     `json:"artifactSha256"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Archive stores sealed record metadata in Postgres.
type Archive struct {
	pool *pgxpool.Pool
}

// NewArchive creates an archive over an existing connection pool.
func NewArchive(pool *pgxpool.Pool) *Archive {
	return &Archive{pool: pool}
}

// Insert records a sealed artifact.
func (a *Archive) Insert(ctx context.Context, rec *ArchivedRecord) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO sealed_records (id, record_type, trust_framework, step_count, signer_key_id, artifact_sha256, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.RecordType, rec.TrustFramework, rec.StepCount, rec.SignerKeyID, rec.ArtifactSHA256, rec.CreatedAt,
	)
	return err
}

// Get returns one archived record by id.
func (a *Archive) Get(ctx context.Context, id string) (*ArchivedRecord, error) {
	row := a.pool.QueryRow(ctx, `
		SELECT id, record_type, trust_framework, step_count, signer_key_id, artifact_sha256, created_at
		FROM sealed_records
		WHERE id = $1`, id)

	var rec ArchivedRecord
	err := row.Scan(&rec.ID, &rec.RecordType, &rec.TrustFramework, &rec.StepCount, &rec.SignerKeyID, &rec.ArtifactSHA256, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns the most recently sealed records, newest first.
func (a *Archive) List(ctx context.Context, limit int) ([]ArchivedRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := a.pool.Query(ctx, `
		SELECT id, record_type, trust_framework, step_count, signer_key_id, artifact_sha256, created_at
		FROM sealed_records
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ArchivedRecord
	for rows.Next() {
		var rec ArchivedRecord
		if err := rows.Scan(&rec.ID, &rec.RecordType, &rec.TrustFramework, &rec.StepCount, &rec.SignerKeyID, &rec.ArtifactSHA256, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
