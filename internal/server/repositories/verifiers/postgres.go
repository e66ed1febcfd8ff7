// Package verifiers provides the PostgreSQL-backed registry of identities
// eligible to attest.
package verifiers

import (
	"context"
	"fmt"
	"time"

	"github.com/aturkov/custodykeeper/internal/dbx"
)

// PostgresRepository implements the verifier registry over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Register marks an identity as eligible to attest. Repeated registration
// is a no-op.
func (r *PostgresRepository) Register(ctx context.Context, identity string) error {
	query := `
		INSERT INTO verifiers (identity, registered_at)
		VALUES ($1, $2)
		ON CONFLICT (identity) DO NOTHING;
	`
	if _, err := r.db.ExecContext(ctx, query, identity, time.Now().UTC()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// IsRegistered reports whether identity may attest.
func (r *PostgresRepository) IsRegistered(ctx context.Context, identity string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM verifiers WHERE identity=$1)`, identity).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}
