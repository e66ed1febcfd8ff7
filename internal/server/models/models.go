// Package models defines the persisted entities of the evidence ledger.
package models

import (
	"time"

	"github.com/aturkov/custodykeeper/internal/fingerprint"
)

// Status is the lifecycle state of an evidence record.
type Status int

const (
	StatusUnset Status = iota
	StatusRegistered
	StatusFlagged
	StatusVerified
)

func (s Status) String() string {
	switch s {
	case StatusRegistered:
		return "REGISTERED"
	case StatusFlagged:
		return "FLAGGED"
	case StatusVerified:
		return "VERIFIED"
	default:
		return "UNSET"
	}
}

// Evidence is an immutable registration record. Only Status and
// CustodyEventCount ever change after creation, and the count only grows.
type Evidence struct {
	ID                int64
	Fingerprint       fingerprint.Fingerprint
	CaseID            string
	Collector         string
	RegisteredAt      time.Time
	Status            Status
	CustodyEventCount int64
}

// CustodyEvent is one immutable entry of an evidence item's handling log,
// indexed 0..n-1 per evidence id.
type CustodyEvent struct {
	EvidenceID   int64
	Index        int64
	Handler      string
	Action       string
	Timestamp    time.Time
	MetadataHash fingerprint.Fingerprint // zero means no off-ledger details
}

// Attestation is an independent verifier's recorded confirmation or denial.
// A verifier may attest at most once per evidence id.
type Attestation struct {
	EvidenceID int64
	Index      int64
	Verifier   string
	Verified   bool
	Timestamp  time.Time
}

// VerificationOutcome reports which branch a verification took, with both
// fingerprints for caller use.
type VerificationOutcome struct {
	Passed    bool
	Expected  fingerprint.Fingerprint
	Submitted fingerprint.Fingerprint
}

// LogEntry is one row of the globally-ordered commit log. EntryHash chains
// over the previous entry's hash and the canonical payload.
type LogEntry struct {
	Seq         int64
	Kind        string
	EvidenceID  int64
	Payload     []byte
	PrevHash    fingerprint.Fingerprint
	EntryHash   fingerprint.Fingerprint
	CommittedAt time.Time
}
