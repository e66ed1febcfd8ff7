package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aturkov/custodykeeper/internal/common"
	"github.com/aturkov/custodykeeper/internal/dbx"
	"github.com/aturkov/custodykeeper/internal/fingerprint"
	"github.com/aturkov/custodykeeper/internal/logging"
	"github.com/aturkov/custodykeeper/internal/server/models"
	"github.com/aturkov/custodykeeper/internal/server/notifications"
	"github.com/aturkov/custodykeeper/internal/server/repositories/attestations"
	"github.com/aturkov/custodykeeper/internal/server/repositories/custody"
	"github.com/aturkov/custodykeeper/internal/server/repositories/evidence"
	"github.com/aturkov/custodykeeper/internal/server/repositories/ledgerlog"
	"github.com/aturkov/custodykeeper/internal/server/repositories/verifiers"
)

// -------- no-op sql driver so dbx.WithTx has something to begin/commit ----

type nopDriver struct{}

func (nopDriver) Open(string) (driver.Conn, error) { return nopConn{}, nil }

type nopConnector struct{}

func (nopConnector) Connect(context.Context) (driver.Conn, error) { return nopConn{}, nil }
func (nopConnector) Driver() driver.Driver                        { return nopDriver{} }

type nopConn struct{}

func (nopConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (nopConn) Close() error                        { return nil }
func (nopConn) Begin() (driver.Tx, error)           { return nopTx{}, nil }

type nopTx struct{}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

// -------- in-memory repositories over shared state --------

type memState struct {
	mu        sync.Mutex
	nextID    int64
	evidence  map[int64]*models.Evidence
	custody   map[int64][]*models.CustodyEvent
	verifiers map[string]bool
	atts      map[int64][]*models.Attestation
	log       []*models.LogEntry
}

func newMemState() *memState {
	return &memState{
		evidence:  make(map[int64]*models.Evidence),
		custody:   make(map[int64][]*models.CustodyEvent),
		verifiers: make(map[string]bool),
		atts:      make(map[int64][]*models.Attestation),
	}
}

type memRepos struct{ st *memState }

func (m *memRepos) RunMigrations(context.Context, *sql.DB) error  { return nil }
func (m *memRepos) Evidence(dbx.DBTX) evidence.Repository         { return &memEvidence{m.st} }
func (m *memRepos) Custody(dbx.DBTX) custody.Repository           { return &memCustody{m.st} }
func (m *memRepos) Verifiers(dbx.DBTX) verifiers.Repository       { return &memVerifiers{m.st} }
func (m *memRepos) Attestations(dbx.DBTX) attestations.Repository { return &memAttestations{m.st} }
func (m *memRepos) LedgerLog(dbx.DBTX) ledgerlog.Repository       { return &memLedgerLog{m.st} }

type memEvidence struct{ st *memState }

func (r *memEvidence) Create(_ context.Context, ev *models.Evidence) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, existing := range r.st.evidence {
		if existing.Fingerprint == ev.Fingerprint {
			return 0, common.ErrDuplicateFingerprint
		}
	}
	r.st.nextID++
	stored := *ev
	stored.ID = r.st.nextID
	r.st.evidence[stored.ID] = &stored
	return stored.ID, nil
}

func (r *memEvidence) GetByID(_ context.Context, id int64) (*models.Evidence, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	ev, ok := r.st.evidence[id]
	if !ok {
		return nil, common.ErrEvidenceNotFound
	}
	copied := *ev
	return &copied, nil
}

func (r *memEvidence) GetByIDForUpdate(ctx context.Context, id int64) (*models.Evidence, error) {
	return r.GetByID(ctx, id)
}

func (r *memEvidence) FingerprintExists(_ context.Context, fp fingerprint.Fingerprint) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, ev := range r.st.evidence {
		if ev.Fingerprint == fp {
			return true, nil
		}
	}
	return false, nil
}

func (r *memEvidence) Count(context.Context) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return int64(len(r.st.evidence)), nil
}

func (r *memEvidence) ListIDs(context.Context) ([]int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	ids := make([]int64, 0, len(r.st.evidence))
	for id := range r.st.evidence {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memEvidence) UpdateStatus(_ context.Context, id int64, status models.Status) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	ev, ok := r.st.evidence[id]
	if !ok {
		return common.ErrEvidenceNotFound
	}
	ev.Status = status
	return nil
}

func (r *memEvidence) SetCustodyEventCount(_ context.Context, id int64, count int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	ev, ok := r.st.evidence[id]
	if !ok {
		return common.ErrEvidenceNotFound
	}
	ev.CustodyEventCount = count
	return nil
}

type memCustody struct{ st *memState }

func (r *memCustody) Append(_ context.Context, event *models.CustodyEvent) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	copied := *event
	r.st.custody[event.EvidenceID] = append(r.st.custody[event.EvidenceID], &copied)
	return nil
}

func (r *memCustody) GetByIndex(_ context.Context, evidenceID, index int64) (*models.CustodyEvent, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	log := r.st.custody[evidenceID]
	if index < 0 || index >= int64(len(log)) {
		return nil, common.ErrIndexOutOfBounds
	}
	copied := *log[index]
	return &copied, nil
}

func (r *memCustody) Count(_ context.Context, evidenceID int64) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return int64(len(r.st.custody[evidenceID])), nil
}

func (r *memCustody) ListByEvidence(_ context.Context, evidenceID int64) ([]*models.CustodyEvent, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	log := r.st.custody[evidenceID]
	out := make([]*models.CustodyEvent, 0, len(log))
	for _, event := range log {
		copied := *event
		out = append(out, &copied)
	}
	return out, nil
}

type memVerifiers struct{ st *memState }

func (r *memVerifiers) Register(_ context.Context, identity string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.verifiers[identity] = true
	return nil
}

func (r *memVerifiers) IsRegistered(_ context.Context, identity string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.st.verifiers[identity], nil
}

type memAttestations struct{ st *memState }

func (r *memAttestations) Append(_ context.Context, att *models.Attestation) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, existing := range r.st.atts[att.EvidenceID] {
		if existing.Verifier == att.Verifier {
			return common.ErrDuplicateAttestation
		}
	}
	copied := *att
	r.st.atts[att.EvidenceID] = append(r.st.atts[att.EvidenceID], &copied)
	return nil
}

func (r *memAttestations) GetByIndex(_ context.Context, evidenceID, index int64) (*models.Attestation, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	list := r.st.atts[evidenceID]
	if index < 0 || index >= int64(len(list)) {
		return nil, common.ErrIndexOutOfBounds
	}
	copied := *list[index]
	return &copied, nil
}

func (r *memAttestations) Count(_ context.Context, evidenceID int64) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return int64(len(r.st.atts[evidenceID])), nil
}

func (r *memAttestations) Exists(_ context.Context, evidenceID int64, verifier string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, att := range r.st.atts[evidenceID] {
		if att.Verifier == verifier {
			return true, nil
		}
	}
	return false, nil
}

type memLedgerLog struct{ st *memState }

func (r *memLedgerLog) Append(_ context.Context, kind string, evidenceID int64, payload []byte, committedAt time.Time) (*models.LogEntry, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	prev := fingerprint.Zero
	if n := len(r.st.log); n > 0 {
		prev = r.st.log[n-1].EntryHash
	}
	entry := &models.LogEntry{
		Seq:         int64(len(r.st.log)) + 1,
		Kind:        kind,
		EvidenceID:  evidenceID,
		Payload:     payload,
		PrevHash:    prev,
		EntryHash:   fingerprint.DigestString(prev.String() + kind + string(payload)),
		CommittedAt: committedAt,
	}
	r.st.log = append(r.st.log, entry)
	copied := *entry
	return &copied, nil
}

func (r *memLedgerLog) GetBySeq(_ context.Context, seq int64) (*models.LogEntry, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if seq < 1 || seq > int64(len(r.st.log)) {
		return nil, common.ErrIndexOutOfBounds
	}
	copied := *r.st.log[seq-1]
	return &copied, nil
}

func (r *memLedgerLog) Head(ctx context.Context) (*models.LogEntry, error) {
	r.st.mu.Lock()
	n := int64(len(r.st.log))
	r.st.mu.Unlock()
	if n == 0 {
		return nil, common.ErrIndexOutOfBounds
	}
	return r.GetBySeq(ctx, n)
}

// -------- recording / failing notifiers --------

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) kinds() []notifications.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifications.Kind, 0, len(n.events))
	for _, event := range n.events {
		out = append(out, event.Kind)
	}
	return out
}

type failingNotifier struct{}

func (failingNotifier) Publish(context.Context, notifications.Event) error {
	return errors.New("broker unavailable")
}

// -------- fixture --------

type fixture struct {
	st       *memState
	ledger   *LedgerService
	notifier *recordingNotifier
	logger   logging.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := sql.OpenDB(nopConnector{})
	t.Cleanup(func() { db.Close() })

	st := newMemState()
	notifier := &recordingNotifier{}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ledger := NewLedgerService(db, &memRepos{st: st}, notifier, logger)
	return &fixture{st: st, ledger: ledger, notifier: notifier, logger: logger}
}
