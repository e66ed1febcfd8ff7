package actions

import (
	"testing"

	"github.com/aturkov/custodykeeper/internal/fingerprint"
)

func TestFingerprint_StableAndDistinct(t *testing.T) {
	seen := map[fingerprint.Fingerprint]string{}
	for _, name := range Canonical {
		fp1 := Fingerprint(name)
		fp2 := Fingerprint(name)
		if fp1 != fp2 {
			t.Errorf("%s: fingerprint not stable", name)
		}
		if prev, dup := seen[fp1]; dup {
			t.Errorf("%s and %s share a fingerprint", name, prev)
		}
		seen[fp1] = name
	}
}

func TestFingerprint_KnownAnswers(t *testing.T) {
	want := map[string]string{
		Collected:   "0xa77f7fd6899ff964b34e05724a0e6ee984d3a3ed080446218dbf6c893a662e96",
		Accessed:    "0x8e2c10bfa40cffb94c1add667659a486f0c8162de9cc0844ebbd94916ef7a239",
		Transferred: "0xdfa15c17b5a4284676d1c0dd554b101d52921e0337cff5f45cf046404171b41f",
		Verified:    "0x3b9099870b8ae4badd49e59f30fc613f918d145d89048031bb3fca631cef16cb",
		Analyzed:    "0x39cb4e92774404eef548c723c181c16c464fac30d70810ea699db874373d2a38",
		Violation:   "0xe07484a0b0eb2086d0037ea5a1e997e6b829262fdfbdc7e0f1d96c9045c2b6c1",
	}
	for name, hexFP := range want {
		if got := Fingerprint(name).String(); got != hexFP {
			t.Errorf("%s: expected %s, got %s", name, hexFP, got)
		}
	}
}

func TestName_ReverseLookup(t *testing.T) {
	for _, name := range Canonical {
		if got := Name(Fingerprint(name)); got != name {
			t.Errorf("expected %s, got %s", name, got)
		}
	}
}

func TestName_CustomActionsAreUnknown(t *testing.T) {
	if got := Name(Fingerprint("SEALED")); got != Unknown {
		t.Errorf("custom action must resolve to UNKNOWN, got %s", got)
	}
	if got := Name(fingerprint.Zero); got != Unknown {
		t.Errorf("zero fingerprint must resolve to UNKNOWN, got %s", got)
	}
}

func TestIsCanonical(t *testing.T) {
	if !IsCanonical(Collected) {
		t.Error("COLLECTED must be canonical")
	}
	if IsCanonical("SEALED") {
		t.Error("SEALED must not be canonical")
	}
	if IsCanonical("collected") {
		t.Error("lookup must be case-sensitive")
	}
}
