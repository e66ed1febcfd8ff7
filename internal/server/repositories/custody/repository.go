package custody

import (
	"context"

	"github.com/aturkov/custodykeeper/internal/server/models"
)

// Repository persists the per-evidence custody event log. The log is strictly
// append-only: entries are never updated, deleted, or reordered.
type Repository interface {
	Append(ctx context.Context, event *models.CustodyEvent) error
	GetByIndex(ctx context.Context, evidenceID, index int64) (*models.CustodyEvent, error)
	Count(ctx context.Context, evidenceID int64) (int64, error)
	ListByEvidence(ctx context.Context, evidenceID int64) ([]*models.CustodyEvent, error)
}
