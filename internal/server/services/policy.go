package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aturkov/custodykeeper/internal/actions"
	"github.com/aturkov/custodykeeper/internal/common"
	"github.com/aturkov/custodykeeper/internal/server/models"
)

// Violation type identifiers carried in VIOLATION records and notifications.
const (
	ViolationInvalidOrder   = "INVALID_CUSTODY_ORDER"
	ViolationParallelAccess = "PARALLEL_ACCESS_VIOLATION"
	ViolationAccessDuration = "ACCESS_DURATION_EXCEEDED"
)

// PolicyError is a custody policy rejection: a sentinel kind for errors.Is
// matching, a violation type identifier for the permanent record, and a
// human-readable detail.
type PolicyError struct {
	Kind   error
	Type   string
	Detail string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *PolicyError) Unwrap() error {
	return e.Kind
}

// PolicyConfig is the fixed custody policy, set at process start.
type PolicyConfig struct {
	RequiredOrder     []string
	AllowedSkips      []string
	MaxAccessDuration time.Duration
	NoParallelAccess  bool
}

type checkout struct {
	handler string
	since   time.Time
}

// evidenceState is the policy runtime state for one evidence id. Its mutex
// serializes concurrent validations for the same id; different ids validate
// fully in parallel.
type evidenceState struct {
	mu          sync.Mutex
	currentStep string
	checkout    *checkout
}

// PolicyValidator decides whether a proposed custody action is permitted. It
// is the gate in front of the ledger store: the store appends whatever it is
// told, the validator is consulted first by the custody service.
//
// Runtime state (current step, active checkout) is a derived cache, not part
// of the durable ledger; Restore rebuilds it from the custody event log.
type PolicyValidator struct {
	cfg   PolicyConfig
	skips map[string]struct{}

	mu     sync.Mutex
	states map[int64]*evidenceState

	now func() time.Time
}

// NewPolicyValidator constructs a validator with the given fixed policy.
func NewPolicyValidator(cfg PolicyConfig) *PolicyValidator {
	skips := make(map[string]struct{}, len(cfg.AllowedSkips))
	for _, s := range cfg.AllowedSkips {
		skips[s] = struct{}{}
	}
	return &PolicyValidator{
		cfg:    cfg,
		skips:  skips,
		states: make(map[int64]*evidenceState),
		now:    time.Now,
	}
}

func (v *PolicyValidator) state(evidenceID int64) *evidenceState {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, ok := v.states[evidenceID]
	if !ok {
		st = &evidenceState{}
		v.states[evidenceID] = st
	}
	return st
}

func (v *PolicyValidator) orderIndex(action string) int {
	for i, step := range v.cfg.RequiredOrder {
		if step == action {
			return i
		}
	}
	return -1
}

// Validate decides whether (evidenceID, action, handler) is permitted and,
// on acceptance, advances the runtime state. On rejection it returns a
// *PolicyError and leaves the state untouched.
func (v *PolicyValidator) Validate(evidenceID int64, action, handler string) error {
	st := v.state(evidenceID)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := v.now()

	// The first action is exempt from every check; the automatic COLLECTED
	// entry at registration lands here.
	if st.currentStep == "" {
		st.accept(action, handler, now)
		return nil
	}

	// Repeating the current step is always legal, and actions outside the
	// formal lifecycle are a deliberate escape hatch. Both still pass
	// through the checkout checks below.
	if action != st.currentStep {
		if nextIndex := v.orderIndex(action); nextIndex >= 0 {
			currentIndex := v.orderIndex(st.currentStep)
			if nextIndex > currentIndex+1 {
				if invalid := v.invalidSkips(currentIndex+1, nextIndex); len(invalid) > 0 {
					return &PolicyError{
						Kind:   common.ErrInvalidCustodyOrder,
						Type:   ViolationInvalidOrder,
						Detail: fmt.Sprintf("steps skipped without permission: %s", strings.Join(invalid, ", ")),
					}
				}
			}
			if nextIndex < currentIndex {
				return &PolicyError{
					Kind:   common.ErrInvalidCustodyOrder,
					Type:   ViolationInvalidOrder,
					Detail: fmt.Sprintf("cannot move backward from %s to %s", st.currentStep, action),
				}
			}
		}
	}

	if v.cfg.NoParallelAccess && action != actions.Collected {
		if st.checkout != nil && st.checkout.handler != handler {
			return &PolicyError{
				Kind:   common.ErrParallelAccessViolation,
				Type:   ViolationParallelAccess,
				Detail: fmt.Sprintf("evidence is checked out by %s", st.checkout.handler),
			}
		}
	}

	if st.checkout != nil {
		if elapsed := now.Sub(st.checkout.since); elapsed > v.cfg.MaxAccessDuration {
			return &PolicyError{
				Kind:   common.ErrAccessDurationExceeded,
				Type:   ViolationAccessDuration,
				Detail: fmt.Sprintf("checkout held for %.1fh, max is %.1fh", elapsed.Hours(), v.cfg.MaxAccessDuration.Hours()),
			}
		}
	}

	st.accept(action, handler, now)
	return nil
}

// invalidSkips returns the required steps in [from, to) that are not in the
// allowed-skips set.
func (v *PolicyValidator) invalidSkips(from, to int) []string {
	var invalid []string
	for _, step := range v.cfg.RequiredOrder[from:to] {
		if _, ok := v.skips[step]; !ok {
			invalid = append(invalid, step)
		}
	}
	return invalid
}

// accept advances the per-evidence runtime state after a permitted action.
func (st *evidenceState) accept(action, handler string, now time.Time) {
	st.currentStep = action
	if action == actions.Accessed || action == actions.Transferred {
		st.checkout = &checkout{handler: handler, since: now}
	}
}

// Restore rebuilds the runtime state of one evidence id from its custody
// event log. VIOLATION entries record rejected attempts and do not advance
// the accepted step.
func (v *PolicyValidator) Restore(evidenceID int64, events []*models.CustodyEvent) {
	st := v.state(evidenceID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.currentStep = ""
	st.checkout = nil
	for _, event := range events {
		if event.Action == actions.Violation {
			continue
		}
		st.accept(event.Action, event.Handler, event.Timestamp)
	}
}

// RestoreAll rebuilds runtime state for every registered evidence id.
func (v *PolicyValidator) RestoreAll(ctx context.Context, ledger *LedgerService) error {
	ids, err := ledger.repos.Evidence(ledger.db).ListIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		events, err := ledger.repos.Custody(ledger.db).ListByEvidence(ctx, id)
		if err != nil {
			return err
		}
		v.Restore(id, events)
	}
	return nil
}
