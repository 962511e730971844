package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Ensure DestinationStore implements the interface.
var _ driven.DestinationStore = (*DestinationStore)(nil)

// DestinationStore is an in-memory implementation of driven.DestinationStore.
type DestinationStore struct {
	mu    sync.RWMutex
	dests map[string]domain.DestinationConfig
}

// NewDestinationStore creates a new in-memory destination store.
func NewDestinationStore() *DestinationStore {
	return &DestinationStore{
		dests: make(map[string]domain.DestinationConfig),
	}
}

// Save stores or updates a destination.
func (s *DestinationStore) Save(_ context.Context, dest domain.DestinationConfig) error {
	if dest.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dests[dest.ID] = dest
	return nil
}

// Get retrieves a destination by ID.
func (s *DestinationStore) Get(_ context.Context, id string) (*domain.DestinationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dest, ok := s.dests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &dest, nil
}

// List returns all destinations.
func (s *DestinationStore) List(_ context.Context) ([]domain.DestinationConfig, error) {
	return s.list(false), nil
}

// ListEnabled returns destinations included in dispatch fan-out.
func (s *DestinationStore) ListEnabled(_ context.Context) ([]domain.DestinationConfig, error) {
	return s.list(true), nil
}

func (s *DestinationStore) list(enabledOnly bool) []domain.DestinationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.DestinationConfig, 0, len(s.dests))
	for _, dest := range s.dests {
		if enabledOnly && !dest.Enabled {
			continue
		}
		result = append(result, dest)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Delete removes a destination.
func (s *DestinationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dests, id)
	return nil
}
