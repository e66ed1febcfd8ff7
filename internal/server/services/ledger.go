// Package services implements the evidence ledger core: the append-only
// ledger store, the custody policy validator, the verification engine, and
// the attestation aggregator. Services are constructed once at process start
// and hold no globals, so tests can run isolated instances.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aturkov/custodykeeper/internal/actions"
	"github.com/aturkov/custodykeeper/internal/common"
	"github.com/aturkov/custodykeeper/internal/dbx"
	"github.com/aturkov/custodykeeper/internal/fingerprint"
	"github.com/aturkov/custodykeeper/internal/logging"
	"github.com/aturkov/custodykeeper/internal/server/models"
	"github.com/aturkov/custodykeeper/internal/server/notifications"
	"github.com/aturkov/custodykeeper/internal/server/repositories/ledgerlog"
	"github.com/aturkov/custodykeeper/internal/server/repositories/repomanager"
)

// LedgerService is the authoritative, append-only store of evidence records,
// custody event logs, and the global commit log. Every mutating operation is
// a single transaction: no partial application is ever observable.
type LedgerService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	notifier notifications.Notifier
	logger   logging.Logger
	now      func() time.Time
}

// NewLedgerService constructs the ledger store service.
func NewLedgerService(db *sql.DB, repos repomanager.RepositoryManager, notifier notifications.Notifier, logger logging.Logger) *LedgerService {
	return &LedgerService{
		db:       db,
		repos:    repos,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// appendLog canonicalizes the payload and appends it to the commit log.
func appendLog(ctx context.Context, logs ledgerlog.Repository, kind notifications.Kind, evidenceID int64, payload any, at time.Time) (*models.LogEntry, error) {
	body, err := fingerprint.Canonicalize(payload)
	if err != nil {
		return nil, err
	}
	return logs.Append(ctx, string(kind), evidenceID, body, at)
}

// emit publishes committed notifications. Delivery is at most once; a failed
// publish is logged so operators can observe the loss, and the operation
// that produced the event stays successful.
func (s *LedgerService) emit(ctx context.Context, events []notifications.Event) {
	for _, event := range events {
		if err := s.notifier.Publish(ctx, event); err != nil {
			s.logger.Warn(ctx, "notification publish failed",
				"kind", string(event.Kind), "seq", event.Seq, "evidence_id", event.EvidenceID, "error", err.Error())
		}
	}
}

// RegisterEvidence anchors a fingerprint and atomically appends the initial
// COLLECTED custody event. Returns the allocated evidence id.
func (s *LedgerService) RegisterEvidence(ctx context.Context, fp fingerprint.Fingerprint, caseID, collector string) (int64, error) {
	if fp.IsZero() {
		return 0, fmt.Errorf("%w: zero-value fingerprint", common.ErrInvalidFingerprint)
	}
	if caseID == "" {
		return 0, fmt.Errorf("%w: empty case id", common.ErrInvalidCaseID)
	}

	var id int64
	var pending []notifications.Event

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		evRepo := s.repos.Evidence(tx)
		custodyRepo := s.repos.Custody(tx)
		logRepo := s.repos.LedgerLog(tx)
		at := s.now().UTC()

		exists, err := evRepo.FingerprintExists(ctx, fp)
		if err != nil {
			return err
		}
		if exists {
			return common.ErrDuplicateFingerprint
		}

		id, err = evRepo.Create(ctx, &models.Evidence{
			Fingerprint:  fp,
			CaseID:       caseID,
			Collector:    collector,
			RegisteredAt: at,
			Status:       models.StatusRegistered,
		})
		if err != nil {
			return err
		}

		// The initial COLLECTED entry commits with the registration or not
		// at all.
		event := &models.CustodyEvent{
			EvidenceID:   id,
			Index:        0,
			Handler:      collector,
			Action:       actions.Collected,
			Timestamp:    at,
			MetadataHash: fingerprint.Zero,
		}
		if err := custodyRepo.Append(ctx, event); err != nil {
			return err
		}
		if err := evRepo.SetCustodyEventCount(ctx, id, 1); err != nil {
			return err
		}

		registered, err := appendLog(ctx, logRepo, notifications.KindEvidenceRegistered, id, notifications.EvidenceRegistered{
			EvidenceID:  id,
			Fingerprint: fp.String(),
			CaseID:      caseID,
			Collector:   collector,
		}, at)
		if err != nil {
			return err
		}
		logged, err := appendLog(ctx, logRepo, notifications.KindCustodyEventLogged, id, notifications.CustodyEventLogged{
			EvidenceID:   id,
			Index:        0,
			Action:       actions.Collected,
			Handler:      collector,
			MetadataHash: fingerprint.Zero.String(),
		}, at)
		if err != nil {
			return err
		}

		pending = []notifications.Event{
			notifications.NewEvent(notifications.KindEvidenceRegistered, registered.Seq, id, at, notifications.EvidenceRegistered{
				EvidenceID: id, Fingerprint: fp.String(), CaseID: caseID, Collector: collector,
			}),
			notifications.NewEvent(notifications.KindCustodyEventLogged, logged.Seq, id, at, notifications.CustodyEventLogged{
				EvidenceID: id, Index: 0, Action: actions.Collected, Handler: collector, MetadataHash: fingerprint.Zero.String(),
			}),
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.emit(ctx, pending)
	return id, nil
}

// AppendCustodyEvent appends one handling event at the next index and
// returns that index. The caller is expected to have consulted the policy
// validator first; the store appends whatever it is told to append.
func (s *LedgerService) AppendCustodyEvent(ctx context.Context, evidenceID int64, action, handler string, metadataHash fingerprint.Fingerprint) (int64, error) {
	if action == "" {
		return 0, fmt.Errorf("%w: empty action", common.ErrInvalidInput)
	}

	var index int64
	var pending []notifications.Event

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		evRepo := s.repos.Evidence(tx)
		at := s.now().UTC()

		ev, err := evRepo.GetByIDForUpdate(ctx, evidenceID)
		if err != nil {
			return err
		}
		index = ev.CustodyEventCount

		if err := s.repos.Custody(tx).Append(ctx, &models.CustodyEvent{
			EvidenceID:   evidenceID,
			Index:        index,
			Handler:      handler,
			Action:       action,
			Timestamp:    at,
			MetadataHash: metadataHash,
		}); err != nil {
			return err
		}
		if err := evRepo.SetCustodyEventCount(ctx, evidenceID, index+1); err != nil {
			return err
		}

		payload := notifications.CustodyEventLogged{
			EvidenceID:   evidenceID,
			Index:        index,
			Action:       action,
			Handler:      handler,
			MetadataHash: metadataHash.String(),
		}
		entry, err := appendLog(ctx, s.repos.LedgerLog(tx), notifications.KindCustodyEventLogged, evidenceID, payload, at)
		if err != nil {
			return err
		}
		pending = []notifications.Event{
			notifications.NewEvent(notifications.KindCustodyEventLogged, entry.Seq, evidenceID, at, payload),
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.emit(ctx, pending)
	return index, nil
}

// AppendViolation converts a rejected custody action into a permanent
// VIOLATION record: the event is appended to the custody log and a
// PolicyViolation notification is committed alongside it. Rejection is never
// silent.
func (s *LedgerService) AppendViolation(ctx context.Context, evidenceID int64, action, handler, violationType, detail string, metadataHash fingerprint.Fingerprint) (int64, error) {
	var index int64
	var pending []notifications.Event

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		evRepo := s.repos.Evidence(tx)
		logRepo := s.repos.LedgerLog(tx)
		at := s.now().UTC()

		ev, err := evRepo.GetByIDForUpdate(ctx, evidenceID)
		if err != nil {
			return err
		}
		index = ev.CustodyEventCount

		if err := s.repos.Custody(tx).Append(ctx, &models.CustodyEvent{
			EvidenceID:   evidenceID,
			Index:        index,
			Handler:      handler,
			Action:       actions.Violation,
			Timestamp:    at,
			MetadataHash: metadataHash,
		}); err != nil {
			return err
		}
		if err := evRepo.SetCustodyEventCount(ctx, evidenceID, index+1); err != nil {
			return err
		}

		loggedPayload := notifications.CustodyEventLogged{
			EvidenceID:   evidenceID,
			Index:        index,
			Action:       actions.Violation,
			Handler:      handler,
			MetadataHash: metadataHash.String(),
		}
		logged, err := appendLog(ctx, logRepo, notifications.KindCustodyEventLogged, evidenceID, loggedPayload, at)
		if err != nil {
			return err
		}
		violationPayload := notifications.PolicyViolation{
			EvidenceID:    evidenceID,
			Handler:       handler,
			Action:        action,
			ViolationType: violationType,
			Detail:        detail,
		}
		violation, err := appendLog(ctx, logRepo, notifications.KindPolicyViolation, evidenceID, violationPayload, at)
		if err != nil {
			return err
		}

		pending = []notifications.Event{
			notifications.NewEvent(notifications.KindCustodyEventLogged, logged.Seq, evidenceID, at, loggedPayload),
			notifications.NewEvent(notifications.KindPolicyViolation, violation.Seq, evidenceID, at, violationPayload),
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.emit(ctx, pending)
	return index, nil
}

// RecordVerification compares a submitted fingerprint against the registered
// one. On a match the evidence becomes VERIFIED and a VERIFIED custody event
// carrying the submitted fingerprint is appended; on a mismatch the evidence
// becomes FLAGGED and only a tamper notification is committed, with no
// custody event (the mismatch is signaled purely via the distinct event).
func (s *LedgerService) RecordVerification(ctx context.Context, evidenceID int64, submitted fingerprint.Fingerprint, verifier string) (*models.VerificationOutcome, error) {
	if submitted.IsZero() {
		return nil, fmt.Errorf("%w: zero-value fingerprint", common.ErrInvalidFingerprint)
	}

	var outcome *models.VerificationOutcome
	var pending []notifications.Event

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		evRepo := s.repos.Evidence(tx)
		logRepo := s.repos.LedgerLog(tx)
		at := s.now().UTC()

		ev, err := evRepo.GetByIDForUpdate(ctx, evidenceID)
		if err != nil {
			return err
		}

		outcome = &models.VerificationOutcome{
			Passed:    ev.Fingerprint == submitted,
			Expected:  ev.Fingerprint,
			Submitted: submitted,
		}

		if !outcome.Passed {
			if err := evRepo.UpdateStatus(ctx, evidenceID, models.StatusFlagged); err != nil {
				return err
			}
			payload := notifications.TamperDetected{
				EvidenceID:           evidenceID,
				Verifier:             verifier,
				ExpectedFingerprint:  ev.Fingerprint.String(),
				SubmittedFingerprint: submitted.String(),
			}
			entry, err := appendLog(ctx, logRepo, notifications.KindTamperDetected, evidenceID, payload, at)
			if err != nil {
				return err
			}
			pending = []notifications.Event{
				notifications.NewEvent(notifications.KindTamperDetected, entry.Seq, evidenceID, at, payload),
			}
			return nil
		}

		if err := evRepo.UpdateStatus(ctx, evidenceID, models.StatusVerified); err != nil {
			return err
		}
		index := ev.CustodyEventCount
		if err := s.repos.Custody(tx).Append(ctx, &models.CustodyEvent{
			EvidenceID:   evidenceID,
			Index:        index,
			Handler:      verifier,
			Action:       actions.Verified,
			Timestamp:    at,
			MetadataHash: submitted,
		}); err != nil {
			return err
		}
		if err := evRepo.SetCustodyEventCount(ctx, evidenceID, index+1); err != nil {
			return err
		}

		passedPayload := notifications.VerificationPassed{
			EvidenceID:  evidenceID,
			Verifier:    verifier,
			Fingerprint: submitted.String(),
		}
		passed, err := appendLog(ctx, logRepo, notifications.KindVerificationPassed, evidenceID, passedPayload, at)
		if err != nil {
			return err
		}
		loggedPayload := notifications.CustodyEventLogged{
			EvidenceID:   evidenceID,
			Index:        index,
			Action:       actions.Verified,
			Handler:      verifier,
			MetadataHash: submitted.String(),
		}
		logged, err := appendLog(ctx, logRepo, notifications.KindCustodyEventLogged, evidenceID, loggedPayload, at)
		if err != nil {
			return err
		}
		pending = []notifications.Event{
			notifications.NewEvent(notifications.KindVerificationPassed, passed.Seq, evidenceID, at, passedPayload),
			notifications.NewEvent(notifications.KindCustodyEventLogged, logged.Seq, evidenceID, at, loggedPayload),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, pending)
	return outcome, nil
}

// GetEvidence returns the evidence record for id.
func (s *LedgerService) GetEvidence(ctx context.Context, id int64) (*models.Evidence, error) {
	return s.repos.Evidence(s.db).GetByID(ctx, id)
}

// GetCustodyEvent returns one custody log entry. The evidence must exist;
// an index past the log end fails with ErrIndexOutOfBounds.
func (s *LedgerService) GetCustodyEvent(ctx context.Context, evidenceID, index int64) (*models.CustodyEvent, error) {
	if _, err := s.repos.Evidence(s.db).GetByID(ctx, evidenceID); err != nil {
		return nil, err
	}
	return s.repos.Custody(s.db).GetByIndex(ctx, evidenceID, index)
}

// GetCustodyEventCount returns the custody log length for an evidence id.
func (s *LedgerService) GetCustodyEventCount(ctx context.Context, evidenceID int64) (int64, error) {
	ev, err := s.repos.Evidence(s.db).GetByID(ctx, evidenceID)
	if err != nil {
		return 0, err
	}
	return ev.CustodyEventCount, nil
}

// IsFingerprintRegistered reports whether any evidence holds fp.
func (s *LedgerService) IsFingerprintRegistered(ctx context.Context, fp fingerprint.Fingerprint) (bool, error) {
	return s.repos.Evidence(s.db).FingerprintExists(ctx, fp)
}

// GetEvidenceCount returns the total number of registered evidence records.
func (s *LedgerService) GetEvidenceCount(ctx context.Context) (int64, error) {
	return s.repos.Evidence(s.db).Count(ctx)
}
