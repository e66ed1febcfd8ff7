package repomanager

import (
	"context"
	"database/sql"

	"github.com/aturkov/custodykeeper/internal/dbx"
	"github.com/aturkov/custodykeeper/internal/server/repositories/attestations"
	"github.com/aturkov/custodykeeper/internal/server/repositories/custody"
	"github.com/aturkov/custodykeeper/internal/server/repositories/evidence"
	"github.com/aturkov/custodykeeper/internal/server/repositories/ledgerlog"
	"github.com/aturkov/custodykeeper/internal/server/repositories/verifiers"
)

// RepositoryManager vends per-entity repositories bound to a DBTX, so a
// service can run several repositories inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Evidence(db dbx.DBTX) evidence.Repository
	Custody(db dbx.DBTX) custody.Repository
	Verifiers(db dbx.DBTX) verifiers.Repository
	Attestations(db dbx.DBTX) attestations.Repository
	LedgerLog(db dbx.DBTX) ledgerlog.Repository
}
