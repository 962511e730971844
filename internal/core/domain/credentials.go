package domain

import "time"

// CredentialState is the OAuth lifecycle state for one destination.
//
// The machine is:
//
//	unconfigured → authorizing → valid → expiring_soon → expired/revoked
//	                  ↑__________________________________________|
//
// valid → expired is detected either by comparing the expiry timestamp
// before use, or by the provider rejecting the token at delivery time.
type CredentialState string

// Credential lifecycle states.
const (
	// CredentialUnconfigured means no authorisation was ever started.
	CredentialUnconfigured CredentialState = "unconfigured"

	// CredentialAuthorizing means an OAuth flow is in flight; the
	// correlation state is persisted awaiting the redirect callback.
	CredentialAuthorizing CredentialState = "authorizing"

	// CredentialValid means the access token is usable.
	CredentialValid CredentialState = "valid"

	// CredentialExpiringSoon means the access token is inside the
	// refresh buffer and will be refreshed before the next use.
	CredentialExpiringSoon CredentialState = "expiring_soon"

	// CredentialExpired means the access token expired and no usable
	// refresh token remains. Operator re-authorisation is required.
	CredentialExpired CredentialState = "expired"

	// CredentialRevoked means the provider rejected the token outright.
	CredentialRevoked CredentialState = "revoked"
)

// IsValid returns true if the state is recognised.
func (s CredentialState) IsValid() bool {
	switch s {
	case CredentialUnconfigured, CredentialAuthorizing, CredentialValid,
		CredentialExpiringSoon, CredentialExpired, CredentialRevoked:
		return true
	default:
		return false
	}
}

// Usable returns true if a delivery may be attempted with tokens in
// this state (possibly after a transparent refresh).
func (s CredentialState) Usable() bool {
	return s == CredentialValid || s == CredentialExpiringSoon
}

// String returns the string representation.
func (s CredentialState) String() string {
	return string(s)
}

// CredentialToken stores OAuth tokens for one destination. Token
// payloads are encrypted at rest by the credential store; this type
// always carries plaintext and must never be logged unredacted.
type CredentialToken struct {
	// ID is the unique identifier (UUID).
	ID string

	// DestinationID links to the DestinationConfig this token serves.
	// At most one active credential set exists per destination.
	DestinationID string

	// Provider identifies the OAuth provider (googledrive, dropbox).
	Provider ProviderType

	// State is the lifecycle state.
	State CredentialState

	// AccessToken is the bearer token for API access.
	AccessToken string

	// RefreshToken is used to obtain new access tokens. May be empty.
	RefreshToken string

	// Expiry is when the access token expires. Zero means unknown.
	Expiry time.Time

	// Scope is the granted OAuth scope string.
	Scope string

	// CreatedAt is when the token was first stored.
	CreatedAt time.Time

	// UpdatedAt is when the token was last refreshed or re-authorised.
	UpdatedAt time.Time
}

// IsExpired returns true if the access token has expired.
func (t *CredentialToken) IsExpired() bool {
	if t.Expiry.IsZero() {
		return false
	}
	return time.Now().After(t.Expiry)
}

// ExpiresWithin returns true if the access token expires inside the
// given buffer (or already has).
func (t *CredentialToken) ExpiresWithin(buffer time.Duration) bool {
	if t.Expiry.IsZero() {
		return false
	}
	return time.Until(t.Expiry) < buffer
}

// HasRefreshToken returns true if a refresh token is available.
func (t *CredentialToken) HasRefreshToken() bool {
	return t.RefreshToken != ""
}

// AuthorizationRequest is the persisted intermediate state of an OAuth
// flow, keyed by a short-lived correlation token. The flow spans an
// external redirect, so it cannot live in process memory.
type AuthorizationRequest struct {
	// State is the random correlation token carried through the
	// provider redirect.
	State string

	// DestinationID is the destination being authorised.
	DestinationID string

	// Provider is the OAuth provider.
	Provider ProviderType

	// CodeVerifier is the PKCE verifier generated at flow start.
	CodeVerifier string

	// RedirectURI is the callback address registered for this flow.
	RedirectURI string

	// CreatedAt is when the flow started. Requests expire quickly.
	CreatedAt time.Time
}

// Expired returns true if the request is older than ttl.
func (r *AuthorizationRequest) Expired(ttl time.Duration) bool {
	return time.Since(r.CreatedAt) > ttl
}
