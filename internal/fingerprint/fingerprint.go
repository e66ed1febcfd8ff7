// Package fingerprint computes the 32-byte Keccak-256 digests that stand in
// for evidence content everywhere in the system. The zero value is reserved
// to mean "absent" and is rejected wherever a real fingerprint is required.
package fingerprint

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aturkov/custodykeeper/internal/common"
	"golang.org/x/crypto/sha3"
)

// Size is the digest length in bytes.
const Size = 32

// HexLen is the textual length of a rendered fingerprint: "0x" + 64 hex digits.
const HexLen = 2 + 2*Size

// Fingerprint is a 32-byte Keccak-256 digest.
type Fingerprint [Size]byte

// Zero is the reserved all-zero "absent" value.
var Zero Fingerprint

// IsZero reports whether f is the reserved absent value.
func (f Fingerprint) IsZero() bool {
	return f == Zero
}

// String renders f as lowercase hex with a 0x prefix, 66 characters total.
func (f Fingerprint) String() string {
	return "0x" + hex.EncodeToString(f[:])
}

// Bytes returns a copy of the digest as a slice.
func (f Fingerprint) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, f[:])
	return out
}

// Parse decodes a textual fingerprint. It requires the exact 0x-prefixed
// 66-character form; hex digits of either case are accepted.
func Parse(s string) (Fingerprint, error) {
	var f Fingerprint
	if len(s) != HexLen || !strings.HasPrefix(s, "0x") {
		return f, fmt.Errorf("%w: fingerprint must be 0x + 64 hex digits", common.ErrInvalidFingerprint)
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return f, fmt.Errorf("%w: %v", common.ErrInvalidFingerprint, err)
	}
	copy(f[:], raw)
	return f, nil
}

// FromBytes converts a raw 32-byte slice into a Fingerprint.
func FromBytes(b []byte) (Fingerprint, error) {
	var f Fingerprint
	if len(b) != Size {
		return f, fmt.Errorf("%w: expected %d bytes, got %d", common.ErrInvalidFingerprint, Size, len(b))
	}
	copy(f[:], b)
	return f, nil
}

func sum(b []byte) Fingerprint {
	var f Fingerprint
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	copy(f[:], h.Sum(nil))
	return f
}

// Digest hashes raw bytes. A nil slice is rejected; an empty one is legal.
func Digest(b []byte) (Fingerprint, error) {
	if b == nil {
		return Zero, fmt.Errorf("%w: nil input", common.ErrInvalidInput)
	}
	return sum(b), nil
}

// DigestString hashes the UTF-8 bytes of s.
func DigestString(s string) Fingerprint {
	return sum([]byte(s))
}

// Canonicalize serializes v to a deterministic JSON byte string: object keys
// are sorted and numeric literals are preserved verbatim, so equal values
// always produce equal bytes regardless of field or insertion order.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	return json.Marshal(tree)
}

// DigestStructured canonicalizes v and hashes the result. Any non-determinism
// here would break fingerprint reproducibility, so the canonical form is
// pinned by tests.
func DigestStructured(v any) (Fingerprint, error) {
	if v == nil {
		return Zero, fmt.Errorf("%w: nil input", common.ErrInvalidInput)
	}
	canon, err := Canonicalize(v)
	if err != nil {
		return Zero, err
	}
	return sum(canon), nil
}
