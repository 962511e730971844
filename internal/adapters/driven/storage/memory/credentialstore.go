package memory

import (
	"context"
	"sync"
	"time"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Ensure CredentialStore implements the interface.
var _ driven.CredentialStore = (*CredentialStore)(nil)

// CredentialStore is an in-memory implementation of driven.CredentialStore.
// Tokens are held in plaintext; it exists for tests only.
type CredentialStore struct {
	mu       sync.RWMutex
	tokens   map[string]domain.CredentialToken
	requests map[string]domain.AuthorizationRequest
}

// NewCredentialStore creates a new in-memory credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		tokens:   make(map[string]domain.CredentialToken),
		requests: make(map[string]domain.AuthorizationRequest),
	}
}

// SaveToken stores or updates a credential token.
func (s *CredentialStore) SaveToken(_ context.Context, token domain.CredentialToken) error {
	if token.DestinationID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	token.UpdatedAt = time.Now().UTC()
	s.tokens[token.DestinationID] = token
	return nil
}

// GetToken retrieves the credential token for a destination.
func (s *CredentialStore) GetToken(_ context.Context, destinationID string) (*domain.CredentialToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[destinationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &token, nil
}

// DeleteToken removes a destination's credential token.
func (s *CredentialStore) DeleteToken(_ context.Context, destinationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, destinationID)
	return nil
}

// SaveAuthRequest stores a pending authorization request.
func (s *CredentialStore) SaveAuthRequest(_ context.Context, req domain.AuthorizationRequest) error {
	if req.State == "" || req.DestinationID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.State] = req
	return nil
}

// TakeAuthRequest retrieves and removes a pending authorization request.
func (s *CredentialStore) TakeAuthRequest(_ context.Context, state string) (*domain.AuthorizationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[state]
	if !ok {
		return nil, domain.ErrAuthStateMismatch
	}
	delete(s.requests, state)
	return &req, nil
}
