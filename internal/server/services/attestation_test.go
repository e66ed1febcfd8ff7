package services

import (
	"context"
	"errors"
	"testing"

	"github.com/aturkov/custodykeeper/internal/common"
	"github.com/aturkov/custodykeeper/internal/server/notifications"
)

func newAttestationFixture(t *testing.T) (*fixture, *AttestationService) {
	t.Helper()
	f := newFixture(t)
	svc := NewAttestationService(f.ledger.db, &memRepos{st: f.st}, f.notifier, f.logger)
	return f, svc
}

func TestRegisterVerifier_Idempotent(t *testing.T) {
	_, svc := newAttestationFixture(t)
	ctx := context.Background()

	if err := svc.RegisterVerifier(ctx, "verifier-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.RegisterVerifier(ctx, "verifier-1"); err != nil {
		t.Errorf("re-registration must be a no-op, got %v", err)
	}
	if err := svc.RegisterVerifier(ctx, ""); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("empty identity: want ErrInvalidInput, got %v", err)
	}
}

func TestAttest_ThreeVerifiersAccumulate(t *testing.T) {
	f, svc := newAttestationFixture(t)
	ctx := context.Background()

	id, err := f.ledger.RegisterEvidence(ctx, repeatedFingerprint(0xAA), "CR-1", "officer-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, verifier := range []string{"verifier-1", "verifier-2", "verifier-3"} {
		if err := svc.RegisterVerifier(ctx, verifier); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		index, err := svc.Attest(ctx, id, verifier, true)
		if err != nil {
			t.Fatalf("attest %s: %v", verifier, err)
		}
		if index != int64(i) {
			t.Errorf("attest %s: expected index %d, got %d", verifier, i, index)
		}
	}

	count, err := svc.AttestationCount(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 attestations, got %d", count)
	}

	att, err := svc.GetAttestation(ctx, id, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if att.Verifier != "verifier-2" || !att.Verified {
		t.Errorf("unexpected attestation: %+v", att)
	}
}

func TestAttest_DuplicateRejected(t *testing.T) {
	f, svc := newAttestationFixture(t)
	ctx := context.Background()

	id, _ := f.ledger.RegisterEvidence(ctx, repeatedFingerprint(0xAA), "CR-1", "officer-1")
	if err := svc.RegisterVerifier(ctx, "verifier-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Attest(ctx, id, "verifier-1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Disagreeing the second time does not help: one attestation per verifier.
	_, err := svc.Attest(ctx, id, "verifier-1", false)
	if !errors.Is(err, common.ErrDuplicateAttestation) {
		t.Fatalf("want ErrDuplicateAttestation, got %v", err)
	}

	count, _ := svc.AttestationCount(ctx, id)
	if count != 1 {
		t.Errorf("expected 1 attestation after rejected duplicate, got %d", count)
	}
}

func TestAttest_RequiresRegisteredVerifier(t *testing.T) {
	f, svc := newAttestationFixture(t)
	ctx := context.Background()

	id, _ := f.ledger.RegisterEvidence(ctx, repeatedFingerprint(0xAA), "CR-1", "officer-1")

	_, err := svc.Attest(ctx, id, "stranger", true)
	if !errors.Is(err, common.ErrNotRegisteredVerifier) {
		t.Fatalf("want ErrNotRegisteredVerifier, got %v", err)
	}
}

func TestAttest_UnknownEvidence(t *testing.T) {
	_, svc := newAttestationFixture(t)
	ctx := context.Background()

	if err := svc.RegisterVerifier(ctx, "verifier-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.Attest(ctx, 42, "verifier-1", true)
	if !errors.Is(err, common.ErrEvidenceNotFound) {
		t.Fatalf("want ErrEvidenceNotFound, got %v", err)
	}
}

func TestAttest_DenialIsRecorded(t *testing.T) {
	f, svc := newAttestationFixture(t)
	ctx := context.Background()

	id, _ := f.ledger.RegisterEvidence(ctx, repeatedFingerprint(0xAA), "CR-1", "officer-1")
	if err := svc.RegisterVerifier(ctx, "verifier-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	index, err := svc.Attest(ctx, id, "verifier-1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	att, err := svc.GetAttestation(ctx, id, index)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if att.Verified {
		t.Error("denial must be stored as verified=false")
	}

	last := f.notifier.events[len(f.notifier.events)-1]
	if last.Kind != notifications.KindVerificationAttested {
		t.Fatalf("expected attestation notification, got %s", last.Kind)
	}
	payload, ok := last.Payload.(notifications.VerificationAttested)
	if !ok {
		t.Fatalf("unexpected payload type %T", last.Payload)
	}
	if payload.Verifier != "verifier-1" || payload.Verified {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestGetAttestation_OutOfBounds(t *testing.T) {
	f, svc := newAttestationFixture(t)
	ctx := context.Background()

	id, _ := f.ledger.RegisterEvidence(ctx, repeatedFingerprint(0xAA), "CR-1", "officer-1")
	_, err := svc.GetAttestation(ctx, id, 0)
	if !errors.Is(err, common.ErrIndexOutOfBounds) {
		t.Fatalf("want ErrIndexOutOfBounds, got %v", err)
	}
}
