package services

import (
	"context"

	"github.com/aturkov/custodykeeper/internal/fingerprint"
	"github.com/aturkov/custodykeeper/internal/server/models"
)

// VerificationService wraps the ledger store's verification with the
// fingerprinting step for callers that submit raw content instead of a
// precomputed fingerprint.
type VerificationService struct {
	ledger *LedgerService
}

// NewVerificationService constructs the verification engine.
func NewVerificationService(ledger *LedgerService) *VerificationService {
	return &VerificationService{ledger: ledger}
}

// VerifyBytes digests raw content and records the verification outcome.
func (s *VerificationService) VerifyBytes(ctx context.Context, evidenceID int64, raw []byte, verifier string) (*models.VerificationOutcome, error) {
	fp, err := fingerprint.Digest(raw)
	if err != nil {
		return nil, err
	}
	return s.ledger.RecordVerification(ctx, evidenceID, fp, verifier)
}

// VerifyFingerprint records the verification outcome for a precomputed
// fingerprint.
func (s *VerificationService) VerifyFingerprint(ctx context.Context, evidenceID int64, fp fingerprint.Fingerprint, verifier string) (*models.VerificationOutcome, error) {
	return s.ledger.RecordVerification(ctx, evidenceID, fp, verifier)
}
