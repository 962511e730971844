package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrelay/docrelay/internal/adapters/driven/storage/memory"
	"github.com/docrelay/docrelay/internal/core/domain"
)

type credentialFixture struct {
	svc        *CredentialService
	dests      *memory.DestinationStore
	creds      *memory.CredentialStore
	deliveries *memory.DeliveryStore
	settings   *SettingsService
}

func newCredentialFixture(t *testing.T) *credentialFixture {
	t.Helper()
	f := &credentialFixture{
		dests:      memory.NewDestinationStore(),
		creds:      memory.NewCredentialStore(),
		deliveries: memory.NewDeliveryStore(),
		settings:   NewSettingsService(nil, memory.NewSettingStore()),
	}
	f.svc = NewCredentialService(f.dests, f.creds, f.deliveries, f.settings)
	return f
}

func (f *credentialFixture) addOAuthDestination(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.dests.Save(context.Background(), domain.DestinationConfig{
		ID:       id,
		Name:     "drive",
		Provider: domain.ProviderGoogleDrive,
		Enabled:  true,
	}))
}

// TestBeginAuthorization_BuildsPKCEFlow tests flow start: the browser
// URL carries the challenge and the request is persisted for the
// callback.
func TestBeginAuthorization_BuildsPKCEFlow(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)
	f.addOAuthDestination(t, "d1")
	require.NoError(t, f.settings.Set(ctx, domain.KeyOAuthClientID, "client-123"))

	flow, err := f.svc.BeginAuthorization(ctx, "d1", 8731)
	require.NoError(t, err)
	assert.NotEmpty(t, flow.State)
	assert.Equal(t, 8731, flow.RedirectPort)
	assert.Equal(t, "http://127.0.0.1:8731/callback", flow.RedirectURI)
	assert.Contains(t, flow.AuthURL, "client-123")
	assert.Contains(t, flow.AuthURL, "code_challenge=")
	assert.Contains(t, flow.AuthURL, "code_challenge_method=S256")
	assert.Contains(t, flow.AuthURL, "access_type=offline")

	req, err := f.creds.TakeAuthRequest(ctx, flow.State)
	require.NoError(t, err)
	assert.Equal(t, "d1", req.DestinationID)
	assert.Equal(t, domain.ProviderGoogleDrive, req.Provider)
	assert.NotEmpty(t, req.CodeVerifier)
}

// TestBeginAuthorization_RequiresClientID tests that an unconfigured
// client id fails the flow start.
func TestBeginAuthorization_RequiresClientID(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)
	f.addOAuthDestination(t, "d1")

	_, err := f.svc.BeginAuthorization(ctx, "d1", 8731)
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
}

// TestBeginAuthorization_RejectsNonOAuthProvider tests that providers
// configured via settings keys cannot start an OAuth flow.
func TestBeginAuthorization_RejectsNonOAuthProvider(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)
	require.NoError(t, f.dests.Save(ctx, domain.DestinationConfig{
		ID: "d1", Name: "share", Provider: domain.ProviderWebDAV,
	}))
	require.NoError(t, f.settings.Set(ctx, domain.KeyOAuthClientID, "client-123"))

	_, err := f.svc.BeginAuthorization(ctx, "d1", 8731)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// TestCompleteAuthorization_UnknownStateIsRejected tests callback state
// correlation.
func TestCompleteAuthorization_UnknownStateIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)

	err := f.svc.CompleteAuthorization(ctx, "never-issued", "code")
	assert.ErrorIs(t, err, domain.ErrAuthStateMismatch)
}

// TestCompleteAuthorization_StateIsSingleUse tests that a consumed
// state cannot be replayed.
func TestCompleteAuthorization_StateIsSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)
	f.addOAuthDestination(t, "d1")
	require.NoError(t, f.settings.Set(ctx, domain.KeyOAuthClientID, "client-123"))

	flow, err := f.svc.BeginAuthorization(ctx, "d1", 8731)
	require.NoError(t, err)

	_, err = f.creds.TakeAuthRequest(ctx, flow.State)
	require.NoError(t, err)

	err = f.svc.CompleteAuthorization(ctx, flow.State, "code")
	assert.ErrorIs(t, err, domain.ErrAuthStateMismatch)
}

// TestCompleteAuthorization_ExpiredFlowIsRejected tests the flow TTL.
func TestCompleteAuthorization_ExpiredFlowIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)

	require.NoError(t, f.creds.SaveAuthRequest(ctx, domain.AuthorizationRequest{
		State:         "stale",
		DestinationID: "d1",
		Provider:      domain.ProviderGoogleDrive,
		CodeVerifier:  "v",
		CreatedAt:     time.Now().Add(-time.Hour),
	}))

	err := f.svc.CompleteAuthorization(ctx, "stale", "code")
	assert.ErrorIs(t, err, domain.ErrAuthStateMismatch)
}

// TestToken_MissingCredentialRequiresAuth tests the unconfigured path.
func TestToken_MissingCredentialRequiresAuth(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)

	_, err := f.svc.Token(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
}

// TestToken_ValidTokenIsReturnedUntouched tests the no-refresh path.
func TestToken_ValidTokenIsReturnedUntouched(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)

	require.NoError(t, f.creds.SaveToken(ctx, domain.CredentialToken{
		ID:            "c1",
		DestinationID: "d1",
		Provider:      domain.ProviderGoogleDrive,
		State:         domain.CredentialValid,
		AccessToken:   "access",
		RefreshToken:  "refresh",
		Expiry:        time.Now().Add(time.Hour),
	}))

	token, err := f.svc.Token(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "access", token.AccessToken)
}

// TestToken_ExpiredWithoutRefreshTokenFails tests the dead-end expiry:
// no refresh token means operator re-authorisation.
func TestToken_ExpiredWithoutRefreshTokenFails(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)

	require.NoError(t, f.creds.SaveToken(ctx, domain.CredentialToken{
		ID:            "c1",
		DestinationID: "d1",
		Provider:      domain.ProviderGoogleDrive,
		State:         domain.CredentialValid,
		AccessToken:   "access",
		Expiry:        time.Now().Add(-time.Minute),
	}))

	_, err := f.svc.Token(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrAuthExpired)

	stored, err := f.creds.GetToken(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.CredentialExpired, stored.State)
}

// TestToken_UnusableStateFails tests that revoked credentials are never
// handed out.
func TestToken_UnusableStateFails(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)

	require.NoError(t, f.creds.SaveToken(ctx, domain.CredentialToken{
		ID:            "c1",
		DestinationID: "d1",
		Provider:      domain.ProviderDropbox,
		State:         domain.CredentialRevoked,
		AccessToken:   "access",
	}))

	_, err := f.svc.Token(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
}

// TestStatus_ReportsLifecycleStates tests status derivation from the
// stored token.
func TestStatus_ReportsLifecycleStates(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)

	state, err := f.svc.Status(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.CredentialUnconfigured, state)

	require.NoError(t, f.creds.SaveToken(ctx, domain.CredentialToken{
		ID:            "c1",
		DestinationID: "d1",
		Provider:      domain.ProviderGoogleDrive,
		State:         domain.CredentialValid,
		AccessToken:   "access",
		RefreshToken:  "refresh",
		Expiry:        time.Now().Add(time.Hour),
	}))
	state, err = f.svc.Status(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.CredentialValid, state)

	require.NoError(t, f.creds.SaveToken(ctx, domain.CredentialToken{
		ID:            "c1",
		DestinationID: "d1",
		Provider:      domain.ProviderGoogleDrive,
		State:         domain.CredentialValid,
		AccessToken:   "access",
		RefreshToken:  "refresh",
		Expiry:        time.Now().Add(time.Minute),
	}))
	state, err = f.svc.Status(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.CredentialExpiringSoon, state)
}

// TestRevoke_ForgetsTokensAndFlagsDeliveries tests revocation.
func TestRevoke_ForgetsTokensAndFlagsDeliveries(t *testing.T) {
	ctx := context.Background()
	f := newCredentialFixture(t)

	require.NoError(t, f.creds.SaveToken(ctx, domain.CredentialToken{
		ID:            "c1",
		DestinationID: "d1",
		Provider:      domain.ProviderDropbox,
		State:         domain.CredentialValid,
		AccessToken:   "access",
	}))
	require.NoError(t, f.deliveries.Save(ctx, domain.DeliveryAttempt{
		DocumentID:    "doc-1",
		DestinationID: "d1",
		State:         domain.DeliveryPending,
	}))

	require.NoError(t, f.svc.Revoke(ctx, "d1"))

	_, err := f.creds.GetToken(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	attempt, err := f.deliveries.Get(ctx, "doc-1", "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryNeedsReauth, attempt.State)
}
