// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/aturkov/custodykeeper/internal/dbx"
	"github.com/aturkov/custodykeeper/internal/server/migrations"
	"github.com/aturkov/custodykeeper/internal/server/repositories/attestations"
	"github.com/aturkov/custodykeeper/internal/server/repositories/custody"
	"github.com/aturkov/custodykeeper/internal/server/repositories/evidence"
	"github.com/aturkov/custodykeeper/internal/server/repositories/ledgerlog"
	"github.com/aturkov/custodykeeper/internal/server/repositories/verifiers"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository
// implementations and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

// Evidence returns an evidence.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Evidence(db dbx.DBTX) evidence.Repository {
	return evidence.NewPostgresRepository(db)
}

// Custody returns a custody.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Custody(db dbx.DBTX) custody.Repository {
	return custody.NewPostgresRepository(db)
}

// Verifiers returns a verifiers.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Verifiers(db dbx.DBTX) verifiers.Repository {
	return verifiers.NewPostgresRepository(db)
}

// Attestations returns an attestations.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Attestations(db dbx.DBTX) attestations.Repository {
	return attestations.NewPostgresRepository(db)
}

// LedgerLog returns the commit log repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) LedgerLog(db dbx.DBTX) ledgerlog.Repository {
	return ledgerlog.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}
