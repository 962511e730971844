package driven

import (
	"context"

	"github.com/docrelay/docrelay/internal/core/domain"
)

// CredentialStore persists OAuth tokens and in-flight authorization
// requests. Implementations encrypt token material at rest.
type CredentialStore interface {
	// SaveToken stores a credential token. Creates if new, updates
	// if exists.
	SaveToken(ctx context.Context, token domain.CredentialToken) error

	// GetToken retrieves the token for a destination.
	GetToken(ctx context.Context, destinationID string) (*domain.CredentialToken, error)

	// DeleteToken removes a destination's token.
	DeleteToken(ctx context.Context, destinationID string) error

	// SaveAuthRequest stores a pending authorization request keyed by
	// its opaque state value.
	SaveAuthRequest(ctx context.Context, req domain.AuthorizationRequest) error

	// TakeAuthRequest retrieves and removes a pending authorization
	// request. Single use: a replayed state value returns
	// domain.ErrAuthStateMismatch.
	TakeAuthRequest(ctx context.Context, state string) (*domain.AuthorizationRequest, error)
}
