package port

import (
	"context"

	"github.com/rohan-chari/tempo-backend/internal/domain"
)

// IdentityVerifier checks a token issued by the external identity provider
// and returns the profile it asserts. Failures are *IdentityError.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*domain.ExternalProfile, error)
}
