// Package actions holds the canonical custody-action vocabulary and the
// mapping between action names and their fingerprint identifiers.
package actions

import "github.com/aturkov/custodykeeper/internal/fingerprint"

// Canonical action names. Case-sensitive; callers may log additional
// ad-hoc action strings, but those are not reverse-resolvable.
const (
	Collected   = "COLLECTED"
	Accessed    = "ACCESSED"
	Transferred = "TRANSFERRED"
	Verified    = "VERIFIED"
	Analyzed    = "ANALYZED"
	Violation   = "VIOLATION"

	// Unknown is returned by Name for fingerprints outside the canonical set.
	Unknown = "UNKNOWN"
)

// Canonical lists the fixed vocabulary in lifecycle-ish order.
var Canonical = []string{Collected, Accessed, Transferred, Verified, Analyzed, Violation}

var byFingerprint = func() map[fingerprint.Fingerprint]string {
	m := make(map[fingerprint.Fingerprint]string, len(Canonical))
	for _, name := range Canonical {
		m[fingerprint.DigestString(name)] = name
	}
	return m
}()

// Fingerprint returns the stable fingerprint identifier for an action name.
// Two calls with the same name always yield the same value.
func Fingerprint(name string) fingerprint.Fingerprint {
	return fingerprint.DigestString(name)
}

// Name resolves a fingerprint back to a canonical action name, or Unknown
// if it does not match the fixed vocabulary.
func Name(fp fingerprint.Fingerprint) string {
	if name, ok := byFingerprint[fp]; ok {
		return name
	}
	return Unknown
}

// IsCanonical reports whether name belongs to the fixed vocabulary.
func IsCanonical(name string) bool {
	for _, c := range Canonical {
		if c == name {
			return true
		}
	}
	return false
}
