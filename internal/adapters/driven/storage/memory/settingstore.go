package memory

import (
	"context"
	"sync"

	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Ensure SettingStore implements the interface.
var _ driven.SettingStore = (*SettingStore)(nil)

// SettingStore is an in-memory implementation of driven.SettingStore.
type SettingStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSettingStore creates a new in-memory setting store.
func NewSettingStore() *SettingStore {
	return &SettingStore{
		values: make(map[string]string),
	}
}

// Set stores or updates a setting value.
func (s *SettingStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Get retrieves a setting value.
func (s *SettingStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok, nil
}

// Unset removes a setting value.
func (s *SettingStore) Unset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// All returns every stored key/value pair.
func (s *SettingStore) All(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make(map[string]string, len(s.values))
	for k, v := range s.values {
		all[k] = v
	}
	return all, nil
}
