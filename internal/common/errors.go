// Package common defines shared constants and sentinel errors used across
// custodykeeper components. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Input validation errors. Recoverable by the caller correcting input.
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidFingerprint = errors.New("invalid fingerprint")
	ErrInvalidCaseID      = errors.New("invalid case id")

	// Reference errors.
	ErrEvidenceNotFound = errors.New("evidence not found")
	ErrIndexOutOfBounds = errors.New("index out of bounds")

	// Uniqueness conflicts.
	ErrDuplicateFingerprint = errors.New("fingerprint already registered")
	ErrDuplicateAttestation = errors.New("verifier already attested")

	// Custody policy rejections. These are converted into permanent
	// VIOLATION custody records by the custody service.
	ErrInvalidCustodyOrder     = errors.New("invalid custody order")
	ErrParallelAccessViolation = errors.New("parallel access violation")
	ErrAccessDurationExceeded  = errors.New("access duration exceeded")
	ErrNotRegisteredVerifier   = errors.New("verifier not registered")

	// Service-level errors (generic/internal flow control).
	ErrInternal = errors.New("internal error")
)
