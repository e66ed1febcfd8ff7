package evidence

import (
	"context"

	"github.com/aturkov/custodykeeper/internal/fingerprint"
	"github.com/aturkov/custodykeeper/internal/server/models"
)

// Repository persists evidence registration records. Records are append-only:
// after creation only status and the custody event count are ever updated.
type Repository interface {
	Create(ctx context.Context, ev *models.Evidence) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Evidence, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Evidence, error)
	FingerprintExists(ctx context.Context, fp fingerprint.Fingerprint) (bool, error)
	Count(ctx context.Context) (int64, error)
	ListIDs(ctx context.Context) ([]int64, error)
	UpdateStatus(ctx context.Context, id int64, status models.Status) error
	SetCustodyEventCount(ctx context.Context, id int64, count int64) error
}
