// Package evidence provides the PostgreSQL-backed repository for evidence
// registration records.
package evidence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aturkov/custodykeeper/internal/common"
	"github.com/aturkov/custodykeeper/internal/dbx"
	"github.com/aturkov/custodykeeper/internal/fingerprint"
	"github.com/aturkov/custodykeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint breaks.
const pgUniqueViolation = "23505"

// PostgresRepository implements evidence storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new evidence record and returns the allocated sequential
// id. A fingerprint uniqueness break maps to ErrDuplicateFingerprint.
func (r *PostgresRepository) Create(ctx context.Context, ev *models.Evidence) (int64, error) {
	query := `
		INSERT INTO evidence (fingerprint, case_id, collector, registered_at, status, custody_event_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		ev.Fingerprint.Bytes(), ev.CaseID, ev.Collector, ev.RegisteredAt, ev.Status, ev.CustodyEventCount,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return 0, common.ErrDuplicateFingerprint
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) get(ctx context.Context, id int64, forUpdate bool) (*models.Evidence, error) {
	query := `
		SELECT id, fingerprint, case_id, collector, registered_at, status, custody_event_count
		FROM evidence WHERE id=$1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var ev models.Evidence
	var fp []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&ev.ID, &fp, &ev.CaseID, &ev.Collector, &ev.RegisteredAt, &ev.Status, &ev.CustodyEventCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrEvidenceNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if ev.Fingerprint, err = fingerprint.FromBytes(fp); err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetByID returns the evidence record for id, or ErrEvidenceNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Evidence, error) {
	return r.get(ctx, id, false)
}

// GetByIDForUpdate is GetByID with a row lock, serializing concurrent
// mutations for the same evidence id within the surrounding transaction.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Evidence, error) {
	return r.get(ctx, id, true)
}

// FingerprintExists reports whether any evidence record holds fp.
func (r *PostgresRepository) FingerprintExists(ctx context.Context, fp fingerprint.Fingerprint) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM evidence WHERE fingerprint=$1)`, fp.Bytes(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Count returns the total number of evidence records.
func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM evidence`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// ListIDs returns all evidence ids in registration order. Used to rebuild
// policy runtime state on startup.
func (r *PostgresRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM evidence ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// UpdateStatus sets the status of an existing record.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, status models.Status) error {
	res, err := r.db.ExecContext(ctx, `UPDATE evidence SET status=$2 WHERE id=$1`, id, status)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

// SetCustodyEventCount records the new log length for an evidence id. The
// count only ever grows; the guard in the query keeps it monotonic.
func (r *PostgresRepository) SetCustodyEventCount(ctx context.Context, id int64, count int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE evidence SET custody_event_count=$2 WHERE id=$1 AND custody_event_count <= $2`, id, count)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrEvidenceNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
