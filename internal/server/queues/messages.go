// Package queues is the AMQP command surface of the ledger: a consumer
// reading command messages from a queue, dispatching them to the services,
// and publishing one result message per command.
package queues

import "encoding/json"

// Command operation identifiers, carried in the envelope's "op" field.
const (
	OpRegister         = "register"
	OpLogAction        = "log_action"
	OpVerify           = "verify"
	OpRegisterVerifier = "register_verifier"
	OpAttest           = "attest"
)

// Command is the envelope of one inbound message. Body holds the
// operation-specific payload.
type Command struct {
	ID   string          `json:"id"`
	Op   string          `json:"op"`
	Body json.RawMessage `json:"body"`
}

// RegisterCommand anchors a new evidence item. Either Fingerprint (hex) or
// Content (base64 raw bytes, digested server-side) must be set; Fingerprint
// wins when both are present.
type RegisterCommand struct {
	Fingerprint string `json:"fingerprint,omitempty"`
	Content     []byte `json:"content,omitempty"`
	CaseID      string `json:"case_id"`
	Collector   string `json:"collector"`
}

// LogActionCommand proposes one custody event.
type LogActionCommand struct {
	EvidenceID int64          `json:"evidence_id"`
	Action     string         `json:"action"`
	Handler    string         `json:"handler"`
	Details    map[string]any `json:"details,omitempty"`
}

// VerifyCommand re-checks evidence integrity. Either Fingerprint (hex) or
// Content (base64 raw bytes) must be set; Fingerprint wins when both are
// present.
type VerifyCommand struct {
	EvidenceID  int64  `json:"evidence_id"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Content     []byte `json:"content,omitempty"`
	Verifier    string `json:"verifier"`
}

// RegisterVerifierCommand adds an identity to the verifier registry.
type RegisterVerifierCommand struct {
	Identity string `json:"identity"`
}

// AttestCommand records one verifier's confirmation or denial.
type AttestCommand struct {
	EvidenceID int64  `json:"evidence_id"`
	Verifier   string `json:"verifier"`
	Verified   bool   `json:"verified"`
}

// Result is the outcome message published for every consumed command.
type Result struct {
	CommandID  string `json:"command_id"`
	Op         string `json:"op"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	EvidenceID int64  `json:"evidence_id,omitempty"`
	Index      int64  `json:"index,omitempty"`
	Passed     *bool  `json:"passed,omitempty"`
}
