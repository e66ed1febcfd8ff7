package verifiers

import "context"

// Repository tracks identities eligible to attest. Registration is
// idempotent.
type Repository interface {
	Register(ctx context.Context, identity string) error
	IsRegistered(ctx context.Context, identity string) (bool, error)
}
