package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// credentialStore implements driven.CredentialStore. Token payloads are
// sealed with the injected cipher before hitting disk; everything else
// (state, provider, timestamps) stays queryable plaintext.
type credentialStore struct {
	store  *Store
	cipher driven.SecretCipher
}

var _ driven.CredentialStore = (*credentialStore)(nil)

// tokenPayload is the encrypted portion of a credential row.
type tokenPayload struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

// SaveToken stores or updates a credential token.
func (s *credentialStore) SaveToken(ctx context.Context, token domain.CredentialToken) error {
	if token.DestinationID == "" {
		return domain.ErrInvalidInput
	}

	payload, err := json.Marshal(tokenPayload{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		Scope:        token.Scope,
	})
	if err != nil {
		return fmt.Errorf("marshalling token payload: %w", err)
	}

	sealed, err := s.cipher.Encrypt(payload)
	if err != nil {
		return fmt.Errorf("encrypting token payload: %w", err)
	}

	now := time.Now().UTC()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	token.UpdatedAt = now

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO credentials (destination_id, id, provider, state, token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(destination_id) DO UPDATE SET
			id = excluded.id,
			provider = excluded.provider,
			state = excluded.state,
			token = excluded.token,
			updated_at = excluded.updated_at
	`, token.DestinationID, token.ID, string(token.Provider), string(token.State),
		sealed, token.CreatedAt, token.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	return nil
}

// GetToken retrieves the credential token for a destination.
func (s *credentialStore) GetToken(ctx context.Context, destinationID string) (*domain.CredentialToken, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT destination_id, id, provider, state, token, created_at, updated_at
		FROM credentials WHERE destination_id = ?
	`, destinationID)

	var token domain.CredentialToken
	var provider, state string
	var sealed []byte
	var createdAt, updatedAt sql.NullTime

	if err := row.Scan(&token.DestinationID, &token.ID, &provider, &state,
		&sealed, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning credential: %w", err)
	}

	token.Provider = domain.ProviderType(provider)
	token.State = domain.CredentialState(state)
	if createdAt.Valid {
		token.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		token.UpdatedAt = updatedAt.Time
	}

	if len(sealed) > 0 {
		plaintext, err := s.cipher.Decrypt(sealed)
		if err != nil {
			return nil, fmt.Errorf("decrypting token payload: %w", err)
		}
		var payload tokenPayload
		if err := json.Unmarshal(plaintext, &payload); err != nil {
			return nil, fmt.Errorf("unmarshalling token payload: %w", err)
		}
		token.AccessToken = payload.AccessToken
		token.RefreshToken = payload.RefreshToken
		token.Expiry = payload.Expiry
		token.Scope = payload.Scope
	}

	return &token, nil
}

// DeleteToken removes a destination's credential token.
func (s *credentialStore) DeleteToken(ctx context.Context, destinationID string) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM credentials WHERE destination_id = ?", destinationID)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}

// SaveAuthRequest stores a pending authorization request.
func (s *credentialStore) SaveAuthRequest(ctx context.Context, req domain.AuthorizationRequest) error {
	if req.State == "" || req.DestinationID == "" {
		return domain.ErrInvalidInput
	}

	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO auth_requests (state, destination_id, provider, code_verifier, redirect_uri, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, req.State, req.DestinationID, string(req.Provider), req.CodeVerifier,
		req.RedirectURI, req.CreatedAt)

	if err != nil {
		return fmt.Errorf("saving auth request: %w", err)
	}
	return nil
}

// TakeAuthRequest retrieves and removes a pending authorization request.
// The row is deleted in the same transaction so a replayed state value
// cannot complete twice.
func (s *credentialStore) TakeAuthRequest(ctx context.Context, state string) (*domain.AuthorizationRequest, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx, `
		SELECT state, destination_id, provider, code_verifier, redirect_uri, created_at
		FROM auth_requests WHERE state = ?
	`, state)

	var req domain.AuthorizationRequest
	var provider string
	var createdAt sql.NullTime
	if err := row.Scan(&req.State, &req.DestinationID, &provider,
		&req.CodeVerifier, &req.RedirectURI, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAuthStateMismatch
		}
		return nil, fmt.Errorf("scanning auth request: %w", err)
	}
	req.Provider = domain.ProviderType(provider)
	if createdAt.Valid {
		req.CreatedAt = createdAt.Time
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM auth_requests WHERE state = ?", state); err != nil {
		return nil, fmt.Errorf("consuming auth request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return &req, nil
}
