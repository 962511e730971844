package driving

import (
	"context"

	"github.com/docrelay/docrelay/internal/core/domain"
)

// OAuthFlowState holds the state for an OAuth flow in progress.
// Driving adapters use it to open the browser and run the callback
// server.
type OAuthFlowState struct {
	// AuthURL is the URL to open in the browser for user authorization.
	AuthURL string

	// State is the OAuth state parameter for CSRF protection.
	State string

	// RedirectURI is the local callback URL for the OAuth flow.
	RedirectURI string

	// RedirectPort is the port the callback server is listening on.
	RedirectPort int
}

// CredentialService manages the OAuth credential lifecycle for
// destinations whose provider requires it.
type CredentialService interface {
	// BeginAuthorization starts a PKCE authorization flow for a
	// destination and returns the browser URL plus correlation state.
	BeginAuthorization(ctx context.Context, destinationID string, redirectPort int) (*OAuthFlowState, error)

	// CompleteAuthorization exchanges the callback code for tokens.
	// The state must match a pending request or the exchange is
	// rejected with domain.ErrAuthStateMismatch.
	CompleteAuthorization(ctx context.Context, state, code string) error

	// Token returns a usable access token for a destination,
	// refreshing first when the stored token is expired or expiring.
	Token(ctx context.Context, destinationID string) (*domain.CredentialToken, error)

	// Status returns the stored credential state for a destination,
	// token material redacted.
	Status(ctx context.Context, destinationID string) (domain.CredentialState, error)

	// Revoke forgets a destination's tokens. Pending deliveries to
	// the destination surface as needs_reauth.
	Revoke(ctx context.Context, destinationID string) error
}
