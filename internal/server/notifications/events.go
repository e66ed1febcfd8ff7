// Package notifications defines the outbound event contract of the ledger
// and its publishers. Delivery is fire-and-forget, at most once: a failed
// publish is logged by the emitting service and never fails the operation
// that produced the event.
package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the routing key of an outbound notification.
type Kind string

const (
	KindEvidenceRegistered   Kind = "evidence.registered"
	KindCustodyEventLogged   Kind = "custody.event.logged"
	KindVerificationPassed   Kind = "verification.passed"
	KindTamperDetected       Kind = "verification.tamper"
	KindVerificationAttested Kind = "attestation.recorded"
	KindPolicyViolation      Kind = "policy.violation"
)

// Event is the envelope shared by every notification. Seq is the entry's
// position in the global commit log; CommittedAt is the commit timestamp.
type Event struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Seq         int64     `json:"seq"`
	EvidenceID  int64     `json:"evidence_id"`
	CommittedAt time.Time `json:"committed_at"`
	Payload     any       `json:"payload"`
}

// NewEvent builds an envelope with a fresh message id.
func NewEvent(kind Kind, seq, evidenceID int64, committedAt time.Time, payload any) Event {
	return Event{
		ID:          uuid.NewString(),
		Kind:        kind,
		Seq:         seq,
		EvidenceID:  evidenceID,
		CommittedAt: committedAt,
		Payload:     payload,
	}
}

// EvidenceRegistered reports a successful registration.
type EvidenceRegistered struct {
	EvidenceID  int64  `json:"evidence_id"`
	Fingerprint string `json:"fingerprint"`
	CaseID      string `json:"case_id"`
	Collector   string `json:"collector"`
}

// CustodyEventLogged reports one appended custody event.
type CustodyEventLogged struct {
	EvidenceID   int64  `json:"evidence_id"`
	Index        int64  `json:"index"`
	Action       string `json:"action"`
	Handler      string `json:"handler"`
	MetadataHash string `json:"metadata_hash"`
}

// VerificationPassed reports a matching fingerprint check.
type VerificationPassed struct {
	EvidenceID  int64  `json:"evidence_id"`
	Verifier    string `json:"verifier"`
	Fingerprint string `json:"fingerprint"`
}

// TamperDetected reports a mismatched fingerprint check. Both fingerprints
// are carried unchanged for external audit.
type TamperDetected struct {
	EvidenceID           int64  `json:"evidence_id"`
	Verifier             string `json:"verifier"`
	ExpectedFingerprint  string `json:"expected_fingerprint"`
	SubmittedFingerprint string `json:"submitted_fingerprint"`
}

// VerificationAttested reports a recorded attestation.
type VerificationAttested struct {
	EvidenceID int64  `json:"evidence_id"`
	Index      int64  `json:"index"`
	Verifier   string `json:"verifier"`
	Verified   bool   `json:"verified"`
}

// PolicyViolation reports a rejected custody action that was converted into
// a permanent VIOLATION record.
type PolicyViolation struct {
	EvidenceID    int64  `json:"evidence_id"`
	Handler       string `json:"handler"`
	Action        string `json:"action"`
	ViolationType string `json:"violation_type"`
	Detail        string `json:"detail"`
}
