// Package custody provides the PostgreSQL-backed repository for per-evidence
// custody event logs.
package custody

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aturkov/custodykeeper/internal/common"
	"github.com/aturkov/custodykeeper/internal/dbx"
	"github.com/aturkov/custodykeeper/internal/fingerprint"
	"github.com/aturkov/custodykeeper/internal/server/models"
)

// PostgresRepository implements custody event storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts the event at its index. The composite primary key rejects
// a second write at the same (evidence id, index) pair.
func (r *PostgresRepository) Append(ctx context.Context, event *models.CustodyEvent) error {
	query := `
		INSERT INTO custody_events (evidence_id, event_index, handler, action, logged_at, metadata_hash)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := r.db.ExecContext(ctx, query,
		event.EvidenceID, event.Index, event.Handler, event.Action, event.Timestamp, event.MetadataHash.Bytes())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByIndex returns one log entry, or ErrIndexOutOfBounds if the index was
// never written for this evidence id.
func (r *PostgresRepository) GetByIndex(ctx context.Context, evidenceID, index int64) (*models.CustodyEvent, error) {
	query := `
		SELECT evidence_id, event_index, handler, action, logged_at, metadata_hash
		FROM custody_events WHERE evidence_id=$1 AND event_index=$2
	`
	var event models.CustodyEvent
	var hash []byte
	err := r.db.QueryRowContext(ctx, query, evidenceID, index).Scan(
		&event.EvidenceID, &event.Index, &event.Handler, &event.Action, &event.Timestamp, &hash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrIndexOutOfBounds
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if event.MetadataHash, err = fingerprint.FromBytes(hash); err != nil {
		return nil, err
	}
	return &event, nil
}

// Count returns the log length for an evidence id.
func (r *PostgresRepository) Count(ctx context.Context, evidenceID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM custody_events WHERE evidence_id=$1`, evidenceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// ListByEvidence returns the full log for an evidence id in append order.
func (r *PostgresRepository) ListByEvidence(ctx context.Context, evidenceID int64) ([]*models.CustodyEvent, error) {
	query := `
		SELECT evidence_id, event_index, handler, action, logged_at, metadata_hash
		FROM custody_events WHERE evidence_id=$1 ORDER BY event_index
	`
	rows, err := r.db.QueryContext(ctx, query, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to select custody events: %w", err)
	}
	defer rows.Close()

	var result []*models.CustodyEvent
	for rows.Next() {
		var event models.CustodyEvent
		var hash []byte
		if err := rows.Scan(
			&event.EvidenceID, &event.Index, &event.Handler, &event.Action, &event.Timestamp, &hash,
		); err != nil {
			return nil, err
		}
		if event.MetadataHash, err = fingerprint.FromBytes(hash); err != nil {
			return nil, err
		}
		result = append(result, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
