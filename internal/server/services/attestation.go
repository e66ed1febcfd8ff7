package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aturkov/custodykeeper/internal/common"
	"github.com/aturkov/custodykeeper/internal/dbx"
	"github.com/aturkov/custodykeeper/internal/logging"
	"github.com/aturkov/custodykeeper/internal/server/models"
	"github.com/aturkov/custodykeeper/internal/server/notifications"
	"github.com/aturkov/custodykeeper/internal/server/repositories/repomanager"
)

// AttestationService collects independent verifier confirmations per
// evidence item. It holds no consensus threshold logic; consensus is
// computed by the caller from the counts.
type AttestationService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	notifier notifications.Notifier
	logger   logging.Logger
	now      func() time.Time
}

// NewAttestationService constructs the attestation aggregator.
func NewAttestationService(db *sql.DB, repos repomanager.RepositoryManager, notifier notifications.Notifier, logger logging.Logger) *AttestationService {
	return &AttestationService{
		db:       db,
		repos:    repos,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterVerifier marks an identity as eligible to attest. Idempotent.
func (s *AttestationService) RegisterVerifier(ctx context.Context, identity string) error {
	if identity == "" {
		return fmt.Errorf("%w: empty verifier identity", common.ErrInvalidInput)
	}
	return s.repos.Verifiers(s.db).Register(ctx, identity)
}

// Attest records one verifier's confirmation or denial for an evidence id
// and returns the attestation index. A verifier attests at most once per id.
func (s *AttestationService) Attest(ctx context.Context, evidenceID int64, verifier string, verified bool) (int64, error) {
	var index int64
	var pending []notifications.Event

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		at := s.now().UTC()

		registered, err := s.repos.Verifiers(tx).IsRegistered(ctx, verifier)
		if err != nil {
			return err
		}
		if !registered {
			return fmt.Errorf("%w: %s", common.ErrNotRegisteredVerifier, verifier)
		}

		// Row lock serializes concurrent attestations for the same id so
		// indexes stay dense.
		if _, err := s.repos.Evidence(tx).GetByIDForUpdate(ctx, evidenceID); err != nil {
			return err
		}

		attRepo := s.repos.Attestations(tx)
		exists, err := attRepo.Exists(ctx, evidenceID, verifier)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s already attested for evidence %d", common.ErrDuplicateAttestation, verifier, evidenceID)
		}

		if index, err = attRepo.Count(ctx, evidenceID); err != nil {
			return err
		}
		if err := attRepo.Append(ctx, &models.Attestation{
			EvidenceID: evidenceID,
			Index:      index,
			Verifier:   verifier,
			Verified:   verified,
			Timestamp:  at,
		}); err != nil {
			return err
		}

		payload := notifications.VerificationAttested{
			EvidenceID: evidenceID,
			Index:      index,
			Verifier:   verifier,
			Verified:   verified,
		}
		entry, err := appendLog(ctx, s.repos.LedgerLog(tx), notifications.KindVerificationAttested, evidenceID, payload, at)
		if err != nil {
			return err
		}
		pending = []notifications.Event{
			notifications.NewEvent(notifications.KindVerificationAttested, entry.Seq, evidenceID, at, payload),
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, event := range pending {
		if err := s.notifier.Publish(ctx, event); err != nil {
			s.logger.Warn(ctx, "notification publish failed",
				"kind", string(event.Kind), "seq", event.Seq, "evidence_id", event.EvidenceID, "error", err.Error())
		}
	}
	return index, nil
}

// AttestationCount returns the number of attestations for an evidence id.
func (s *AttestationService) AttestationCount(ctx context.Context, evidenceID int64) (int64, error) {
	if _, err := s.repos.Evidence(s.db).GetByID(ctx, evidenceID); err != nil {
		return 0, err
	}
	return s.repos.Attestations(s.db).Count(ctx, evidenceID)
}

// GetAttestation returns one attestation by index.
func (s *AttestationService) GetAttestation(ctx context.Context, evidenceID, index int64) (*models.Attestation, error) {
	if _, err := s.repos.Evidence(s.db).GetByID(ctx, evidenceID); err != nil {
		return nil, err
	}
	return s.repos.Attestations(s.db).GetByIndex(ctx, evidenceID, index)
}
