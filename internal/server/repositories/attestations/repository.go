package attestations

import (
	"context"

	"github.com/aturkov/custodykeeper/internal/server/models"
)

// Repository persists attestations. A verifier identity may attest to a
// given evidence id at most once.
type Repository interface {
	Append(ctx context.Context, att *models.Attestation) error
	GetByIndex(ctx context.Context, evidenceID, index int64) (*models.Attestation, error)
	Count(ctx context.Context, evidenceID int64) (int64, error)
	Exists(ctx context.Context, evidenceID int64, verifier string) (bool, error)
}
