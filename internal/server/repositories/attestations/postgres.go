// Package attestations provides the PostgreSQL-backed repository for
// per-evidence attestation lists.
package attestations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aturkov/custodykeeper/internal/common"
	"github.com/aturkov/custodykeeper/internal/dbx"
	"github.com/aturkov/custodykeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// PostgresRepository implements attestation storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts the attestation at its index. A repeat by the same verifier
// for the same evidence id maps to ErrDuplicateAttestation.
func (r *PostgresRepository) Append(ctx context.Context, att *models.Attestation) error {
	query := `
		INSERT INTO attestations (evidence_id, att_index, verifier, verified, attested_at)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := r.db.ExecContext(ctx, query,
		att.EvidenceID, att.Index, att.Verifier, att.Verified, att.Timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrDuplicateAttestation
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByIndex returns one attestation, or ErrIndexOutOfBounds.
func (r *PostgresRepository) GetByIndex(ctx context.Context, evidenceID, index int64) (*models.Attestation, error) {
	query := `
		SELECT evidence_id, att_index, verifier, verified, attested_at
		FROM attestations WHERE evidence_id=$1 AND att_index=$2
	`
	var att models.Attestation
	err := r.db.QueryRowContext(ctx, query, evidenceID, index).Scan(
		&att.EvidenceID, &att.Index, &att.Verifier, &att.Verified, &att.Timestamp,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrIndexOutOfBounds
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &att, nil
}

// Count returns the number of attestations recorded for an evidence id.
func (r *PostgresRepository) Count(ctx context.Context, evidenceID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM attestations WHERE evidence_id=$1`, evidenceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// Exists reports whether verifier already attested for evidence id.
func (r *PostgresRepository) Exists(ctx context.Context, evidenceID int64, verifier string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM attestations WHERE evidence_id=$1 AND verifier=$2)`,
		evidenceID, verifier).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}
