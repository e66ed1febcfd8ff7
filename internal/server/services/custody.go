package services

import (
	"context"
	"errors"
	"time"

	"github.com/aturkov/custodykeeper/internal/fingerprint"
	"github.com/aturkov/custodykeeper/internal/logging"
)

// CustodyService is the gate in front of the ledger store for handling
// actions: every proposal is validated first, and a rejected proposal is
// itself recorded as a permanent VIOLATION entry before the rejection is
// surfaced to the caller.
type CustodyService struct {
	ledger *LedgerService
	policy *PolicyValidator
	logger logging.Logger
	now    func() time.Time
}

// NewCustodyService constructs the custody service.
func NewCustodyService(ledger *LedgerService, policy *PolicyValidator, logger logging.Logger) *CustodyService {
	return &CustodyService{
		ledger: ledger,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// LogAction validates and appends one custody event, returning its index.
//
// On acceptance the proposed event is appended, with metadataHash digested
// from the optional details object. On rejection the proposed event is NOT
// appended; a VIOLATION event is appended instead, carrying a digest of
// {violationType, details, timestamp}, and the policy error is returned with
// the violation index discarded from the caller's point of view.
func (s *CustodyService) LogAction(ctx context.Context, evidenceID int64, action, handler string, details map[string]any) (int64, error) {
	// Resolve existence up front so a policy check never manufactures
	// runtime state for an id that was never registered.
	if _, err := s.ledger.GetEvidence(ctx, evidenceID); err != nil {
		return 0, err
	}

	if err := s.policy.Validate(evidenceID, action, handler); err != nil {
		var policyErr *PolicyError
		if !errors.As(err, &policyErr) {
			return 0, err
		}

		metadataHash, hashErr := fingerprint.DigestStructured(map[string]any{
			"violationType": policyErr.Type,
			"details":       policyErr.Detail,
			"timestamp":     s.now().UTC().Format(time.RFC3339),
		})
		if hashErr != nil {
			return 0, hashErr
		}
		if _, recErr := s.ledger.AppendViolation(ctx, evidenceID, action, handler, policyErr.Type, policyErr.Detail, metadataHash); recErr != nil {
			s.logger.Error(ctx, "failed to record custody violation",
				"evidence_id", evidenceID, "action", action, "error", recErr.Error())
			return 0, recErr
		}
		return 0, err
	}

	metadataHash := fingerprint.Zero
	if details != nil {
		var err error
		if metadataHash, err = fingerprint.DigestStructured(details); err != nil {
			return 0, err
		}
	}
	return s.ledger.AppendCustodyEvent(ctx, evidenceID, action, handler, metadataHash)
}
