package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
	"github.com/docrelay/docrelay/internal/core/ports/driving"
	"github.com/docrelay/docrelay/internal/logger"
)

// Ensure CredentialService implements the interface.
var _ driving.CredentialService = (*CredentialService)(nil)

const (
	// authRequestTTL bounds how long a started OAuth flow stays valid.
	authRequestTTL = 10 * time.Minute

	// refreshBuffer triggers a transparent refresh before the access
	// token actually expires.
	refreshBuffer = 5 * time.Minute
)

// googleDriveScope grants per-file access to content the app created.
const googleDriveScope = "https://www.googleapis.com/auth/drive.file"

// dropboxScopes cover folder creation and uploads.
var dropboxScopes = []string{"files.content.write", "files.content.read"}

// CredentialService manages OAuth tokens for cloud-drive destinations:
// the PKCE authorisation flow, transparent refresh before use and
// explicit revocation.
type CredentialService struct {
	dests      driven.DestinationStore
	creds      driven.CredentialStore
	deliveries driven.DeliveryStore
	settings   *SettingsService
}

// NewCredentialService creates a new credential service.
func NewCredentialService(dests driven.DestinationStore, creds driven.CredentialStore, deliveries driven.DeliveryStore, settings *SettingsService) *CredentialService {
	return &CredentialService{
		dests:      dests,
		creds:      creds,
		deliveries: deliveries,
		settings:   settings,
	}
}

// BeginAuthorization starts a PKCE flow for a destination. The
// correlation state and code verifier are persisted so the callback can
// arrive in a different process invocation.
func (s *CredentialService) BeginAuthorization(ctx context.Context, destinationID string, redirectPort int) (*driving.OAuthFlowState, error) {
	dest, err := s.dests.Get(ctx, destinationID)
	if err != nil {
		return nil, fmt.Errorf("loading destination: %w", err)
	}
	if !dest.Provider.RequiresOAuth() {
		return nil, fmt.Errorf("%w: provider %s does not use OAuth", domain.ErrInvalidInput, dest.Provider)
	}

	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", redirectPort)
	conf, err := s.oauthConfig(ctx, dest.Provider, redirectURI)
	if err != nil {
		return nil, err
	}

	state, err := newFlowState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}
	verifier, err := newCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("generating code verifier: %w", err)
	}

	req := domain.AuthorizationRequest{
		State:         state,
		DestinationID: dest.ID,
		Provider:      dest.Provider,
		CodeVerifier:  verifier,
		RedirectURI:   redirectURI,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.creds.SaveAuthRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("persisting authorization request: %w", err)
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", challengeS256(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	opts = append(opts, offlineAccessOptions(dest.Provider)...)

	return &driving.OAuthFlowState{
		AuthURL:      conf.AuthCodeURL(state, opts...),
		State:        state,
		RedirectURI:  redirectURI,
		RedirectPort: redirectPort,
	}, nil
}

// CompleteAuthorization exchanges the callback code for tokens. The
// state is single use and expires; a replay or a stale flow is rejected.
func (s *CredentialService) CompleteAuthorization(ctx context.Context, state, code string) error {
	req, err := s.creds.TakeAuthRequest(ctx, state)
	if err != nil {
		return fmt.Errorf("matching authorization request: %w", err)
	}
	if req.Expired(authRequestTTL) {
		return fmt.Errorf("%w: flow started too long ago", domain.ErrAuthStateMismatch)
	}

	conf, err := s.oauthConfig(ctx, req.Provider, req.RedirectURI)
	if err != nil {
		return err
	}

	token, err := conf.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", req.CodeVerifier))
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}

	scope, _ := token.Extra("scope").(string)
	now := time.Now().UTC()
	cred := domain.CredentialToken{
		ID:            uuid.NewString(),
		DestinationID: req.DestinationID,
		Provider:      req.Provider,
		State:         domain.CredentialValid,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		Expiry:        token.Expiry,
		Scope:         scope,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.creds.SaveToken(ctx, cred); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}

	logger.Info("oauth: destination %s authorised with %s", req.DestinationID, req.Provider)
	return nil
}

// Token returns a usable access token for a destination, refreshing
// transparently when the stored token is expired or inside the refresh
// buffer.
func (s *CredentialService) Token(ctx context.Context, destinationID string) (*domain.CredentialToken, error) {
	cred, err := s.creds.GetToken(ctx, destinationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("destination %s: %w", destinationID, domain.ErrAuthRequired)
		}
		return nil, fmt.Errorf("loading token: %w", err)
	}
	if !cred.State.Usable() {
		return nil, fmt.Errorf("destination %s credential is %s: %w", destinationID, cred.State, domain.ErrAuthExpired)
	}

	if !cred.IsExpired() && !cred.ExpiresWithin(refreshBuffer) {
		return cred, nil
	}

	if !cred.HasRefreshToken() {
		if cred.IsExpired() {
			s.markState(ctx, cred, domain.CredentialExpired)
			return nil, fmt.Errorf("destination %s: %w", destinationID, domain.ErrAuthExpired)
		}
		// Expiring soon but still valid; nothing we can do but use it.
		s.markState(ctx, cred, domain.CredentialExpiringSoon)
		return cred, nil
	}

	refreshed, err := s.refresh(ctx, cred)
	if err != nil {
		if cred.IsExpired() {
			s.markState(ctx, cred, domain.CredentialExpired)
			return nil, fmt.Errorf("destination %s: %w: %v", destinationID, domain.ErrTokenRefreshFailed, err)
		}
		logger.Warn("oauth: refresh for %s failed, access token still valid: %v", destinationID, err)
		s.markState(ctx, cred, domain.CredentialExpiringSoon)
		return cred, nil
	}
	return refreshed, nil
}

// Status returns the credential lifecycle state for a destination.
func (s *CredentialService) Status(ctx context.Context, destinationID string) (domain.CredentialState, error) {
	cred, err := s.creds.GetToken(ctx, destinationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.CredentialUnconfigured, nil
		}
		return "", fmt.Errorf("loading token: %w", err)
	}

	switch {
	case !cred.State.Usable():
		return cred.State, nil
	case cred.IsExpired() && !cred.HasRefreshToken():
		return domain.CredentialExpired, nil
	case cred.ExpiresWithin(refreshBuffer):
		return domain.CredentialExpiringSoon, nil
	default:
		return domain.CredentialValid, nil
	}
}

// Revoke forgets a destination's tokens and flips its pending
// deliveries to needs_reauth.
func (s *CredentialService) Revoke(ctx context.Context, destinationID string) error {
	if err := s.creds.DeleteToken(ctx, destinationID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("deleting token: %w", err)
	}
	if err := s.deliveries.MarkNeedsReauth(ctx, destinationID); err != nil {
		return fmt.Errorf("marking pending deliveries: %w", err)
	}
	logger.Info("oauth: credential for destination %s revoked", destinationID)
	return nil
}

// refresh exchanges the refresh token for a new access token and
// persists the result.
func (s *CredentialService) refresh(ctx context.Context, cred *domain.CredentialToken) (*domain.CredentialToken, error) {
	conf, err := s.oauthConfig(ctx, cred.Provider, "")
	if err != nil {
		return nil, err
	}

	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	cred.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		cred.RefreshToken = token.RefreshToken
	}
	cred.Expiry = token.Expiry
	cred.State = domain.CredentialValid
	cred.UpdatedAt = time.Now().UTC()
	if err := s.creds.SaveToken(ctx, *cred); err != nil {
		return nil, fmt.Errorf("storing refreshed token: %w", err)
	}
	return cred, nil
}

// markState persists a lifecycle state change, best-effort.
func (s *CredentialService) markState(ctx context.Context, cred *domain.CredentialToken, state domain.CredentialState) {
	if cred.State == state {
		return
	}
	cred.State = state
	cred.UpdatedAt = time.Now().UTC()
	if err := s.creds.SaveToken(ctx, *cred); err != nil {
		logger.Warn("oauth: recording credential state %s: %v", state, err)
	}
}

// oauthConfig builds the provider's oauth2 configuration from the
// shared client settings. The client secret may be empty for PKCE-only
// public clients.
func (s *CredentialService) oauthConfig(ctx context.Context, provider domain.ProviderType, redirectURI string) (*oauth2.Config, error) {
	clientID, err := s.settings.Value(ctx, domain.KeyOAuthClientID)
	if err != nil {
		return nil, fmt.Errorf("resolving oauth client id: %w", err)
	}
	if clientID == "" {
		return nil, fmt.Errorf("%w: %s is not configured", domain.ErrAuthRequired, domain.KeyOAuthClientID)
	}
	clientSecret, err := s.settings.Value(ctx, domain.KeyOAuthClientSecret)
	if err != nil {
		return nil, fmt.Errorf("resolving oauth client secret: %w", err)
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
	}

	switch provider {
	case domain.ProviderGoogleDrive:
		conf.Endpoint = endpoints.Google
		conf.Scopes = []string{googleDriveScope}
	case domain.ProviderDropbox:
		conf.Endpoint = endpoints.Dropbox
		conf.Scopes = dropboxScopes
	default:
		return nil, fmt.Errorf("%w: no OAuth endpoint for provider %s", domain.ErrUnsupportedType, provider)
	}
	return conf, nil
}

// offlineAccessOptions returns the provider-specific parameters that
// make the authorisation grant a refresh token.
func offlineAccessOptions(provider domain.ProviderType) []oauth2.AuthCodeOption {
	switch provider {
	case domain.ProviderGoogleDrive:
		return []oauth2.AuthCodeOption{
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "consent"),
		}
	case domain.ProviderDropbox:
		return []oauth2.AuthCodeOption{
			oauth2.SetAuthURLParam("token_access_type", "offline"),
		}
	default:
		return nil
	}
}
