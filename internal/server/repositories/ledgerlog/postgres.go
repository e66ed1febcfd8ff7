// Package ledgerlog provides the PostgreSQL-backed global commit log. Each
// entry's hash chains over the previous entry's hash, so any rewrite of
// history breaks the chain.
package ledgerlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aturkov/custodykeeper/internal/common"
	"github.com/aturkov/custodykeeper/internal/dbx"
	"github.com/aturkov/custodykeeper/internal/fingerprint"
	"github.com/aturkov/custodykeeper/internal/server/models"
)

// PostgresRepository implements the commit log over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append writes the next log entry. Must run inside the same transaction as
// the state change it records; the table lock linearizes the hash chain when
// writers for different evidence ids commit concurrently.
func (r *PostgresRepository) Append(ctx context.Context, kind string, evidenceID int64, payload []byte, committedAt time.Time) (*models.LogEntry, error) {
	if _, err := r.db.ExecContext(ctx, `LOCK TABLE ledger_log IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	prev := fingerprint.Zero
	var prevRaw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT entry_hash FROM ledger_log ORDER BY seq DESC LIMIT 1`).Scan(&prevRaw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// genesis entry, prev stays zero
	case err != nil:
		return nil, fmt.Errorf("db error: %w", err)
	default:
		if prev, err = fingerprint.FromBytes(prevRaw); err != nil {
			return nil, err
		}
	}

	entryHash := chainHash(prev, kind, payload)

	entry := &models.LogEntry{
		Kind:        kind,
		EvidenceID:  evidenceID,
		Payload:     payload,
		PrevHash:    prev,
		EntryHash:   entryHash,
		CommittedAt: committedAt,
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO ledger_log (kind, evidence_id, payload, prev_hash, entry_hash, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq;
	`, kind, evidenceID, payload, prev.Bytes(), entryHash.Bytes(), committedAt).Scan(&entry.Seq)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entry, nil
}

// chainHash binds an entry to its predecessor: keccak(prev || kind || payload).
func chainHash(prev fingerprint.Fingerprint, kind string, payload []byte) fingerprint.Fingerprint {
	buf := make([]byte, 0, fingerprint.Size+len(kind)+1+len(payload))
	buf = append(buf, prev[:]...)
	buf = append(buf, kind...)
	buf = append(buf, '\n')
	buf = append(buf, payload...)
	hash, _ := fingerprint.Digest(buf) // buf is never nil
	return hash
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.LogEntry, error) {
	var entry models.LogEntry
	var prevRaw, hashRaw []byte
	err := row.Scan(&entry.Seq, &entry.Kind, &entry.EvidenceID, &entry.Payload, &prevRaw, &hashRaw, &entry.CommittedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrIndexOutOfBounds
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if entry.PrevHash, err = fingerprint.FromBytes(prevRaw); err != nil {
		return nil, err
	}
	if entry.EntryHash, err = fingerprint.FromBytes(hashRaw); err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetBySeq returns the entry at the given log position.
func (r *PostgresRepository) GetBySeq(ctx context.Context, seq int64) (*models.LogEntry, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT seq, kind, evidence_id, payload, prev_hash, entry_hash, committed_at
		FROM ledger_log WHERE seq=$1`, seq))
}

// Head returns the most recent entry.
func (r *PostgresRepository) Head(ctx context.Context) (*models.LogEntry, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT seq, kind, evidence_id, payload, prev_hash, entry_hash, committed_at
		FROM ledger_log ORDER BY seq DESC LIMIT 1`))
}
