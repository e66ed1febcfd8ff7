package ledgerlog

import (
	"context"
	"time"

	"github.com/aturkov/custodykeeper/internal/server/models"
)

// Repository is the single, globally-ordered, append-only commit log. Every
// state-mutating transaction appends one entry per emitted notification; the
// entry's sequence number is the notification's log position.
type Repository interface {
	Append(ctx context.Context, kind string, evidenceID int64, payload []byte, committedAt time.Time) (*models.LogEntry, error)
	GetBySeq(ctx context.Context, seq int64) (*models.LogEntry, error)
	Head(ctx context.Context) (*models.LogEntry, error)
}
