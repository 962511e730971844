package memory

import (
	"context"
	"sync"
	"time"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Ensure DeliveryStore implements the interface.
var _ driven.DeliveryStore = (*DeliveryStore)(nil)

type pairKey struct {
	documentID    string
	destinationID string
}

// DeliveryStore is an in-memory implementation of driven.DeliveryStore.
type DeliveryStore struct {
	mu       sync.RWMutex
	attempts map[pairKey]domain.DeliveryAttempt
}

// NewDeliveryStore creates a new in-memory delivery store.
func NewDeliveryStore() *DeliveryStore {
	return &DeliveryStore{
		attempts: make(map[pairKey]domain.DeliveryAttempt),
	}
}

// Save stores or updates a delivery attempt.
func (s *DeliveryStore) Save(_ context.Context, attempt domain.DeliveryAttempt) error {
	if attempt.DocumentID == "" || attempt.DestinationID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt.UpdatedAt = time.Now().UTC()
	s.attempts[pairKey{attempt.DocumentID, attempt.DestinationID}] = attempt
	return nil
}

// Get retrieves the attempt for one pair.
func (s *DeliveryStore) Get(_ context.Context, documentID, destinationID string) (*domain.DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[pairKey{documentID, destinationID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &attempt, nil
}

// ListByDocument returns all attempts for a document.
func (s *DeliveryStore) ListByDocument(_ context.Context, documentID string) ([]domain.DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.DeliveryAttempt
	for key, attempt := range s.attempts {
		if key.documentID == documentID {
			result = append(result, attempt)
		}
	}
	return result, nil
}

// ListByDestination returns all attempts for a destination.
func (s *DeliveryStore) ListByDestination(_ context.Context, destinationID string) ([]domain.DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.DeliveryAttempt
	for key, attempt := range s.attempts {
		if key.destinationID == destinationID {
			result = append(result, attempt)
		}
	}
	return result, nil
}

// MarkNeedsReauth flips every non-final attempt for a destination to
// needs_reauth.
func (s *DeliveryStore) MarkNeedsReauth(_ context.Context, destinationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, attempt := range s.attempts {
		if key.destinationID != destinationID || attempt.State.IsFinal() {
			continue
		}
		attempt.State = domain.DeliveryNeedsReauth
		attempt.LastErrorClass = domain.ErrClassAuthExpired
		attempt.UpdatedAt = time.Now().UTC()
		s.attempts[key] = attempt
	}
	return nil
}
