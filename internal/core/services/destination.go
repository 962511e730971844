package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
	"github.com/docrelay/docrelay/internal/core/ports/driving"
	"github.com/docrelay/docrelay/internal/logger"
)

// Ensure DestinationService implements the interface.
var _ driving.DestinationService = (*DestinationService)(nil)

// placeholderPattern matches {placeholder} tokens in a path template.
var placeholderPattern = regexp.MustCompile(`\{[^{}]*\}`)

// knownPlaceholders is the closed set of path template placeholders.
var knownPlaceholders = map[string]bool{
	"{yyyy}":  true,
	"{mm}":    true,
	"{dd}":    true,
	"{title}": true,
	"{name}":  true,
}

// DestinationService manages destination configurations.
type DestinationService struct {
	dests       driven.DestinationStore
	creds       driven.CredentialStore
	registry    driven.AdapterRegistry
	credentials driving.CredentialService
	settings    *SettingsService
}

// NewDestinationService creates a new destination service.
func NewDestinationService(dests driven.DestinationStore, creds driven.CredentialStore, registry driven.AdapterRegistry, credentials driving.CredentialService, settings *SettingsService) *DestinationService {
	return &DestinationService{
		dests:       dests,
		creds:       creds,
		registry:    registry,
		credentials: credentials,
		settings:    settings,
	}
}

// Save creates or updates a destination after validating the provider
// type and path template.
func (s *DestinationService) Save(ctx context.Context, dest domain.DestinationConfig) (*domain.DestinationConfig, error) {
	if dest.Name == "" {
		return nil, fmt.Errorf("%w: destination name required", domain.ErrInvalidInput)
	}
	if !dest.Provider.IsValid() {
		return nil, fmt.Errorf("%w: provider %q", domain.ErrUnsupportedType, dest.Provider)
	}
	if err := validatePathTemplate(dest.PathTemplate); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if dest.ID == "" {
		dest.ID = uuid.NewString()
		dest.CreatedAt = now
	} else if existing, err := s.dests.Get(ctx, dest.ID); err == nil {
		dest.CreatedAt = existing.CreatedAt
		if existing.Provider != dest.Provider {
			return nil, fmt.Errorf("%w: provider cannot change after creation", domain.ErrInvalidInput)
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("loading destination: %w", err)
	} else {
		dest.CreatedAt = now
	}
	dest.UpdatedAt = now

	if err := s.dests.Save(ctx, dest); err != nil {
		return nil, fmt.Errorf("saving destination: %w", err)
	}
	logger.Info("destination %s (%s) saved", dest.Name, dest.Provider)
	return &dest, nil
}

// Get retrieves a destination by ID.
func (s *DestinationService) Get(ctx context.Context, id string) (*domain.DestinationConfig, error) {
	return s.dests.Get(ctx, id)
}

// List returns all destinations.
func (s *DestinationService) List(ctx context.Context) ([]domain.DestinationConfig, error) {
	return s.dests.List(ctx)
}

// SetEnabled toggles a destination in or out of the dispatch fan-out.
func (s *DestinationService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	dest, err := s.dests.Get(ctx, id)
	if err != nil {
		return err
	}
	if dest.Enabled == enabled {
		return nil
	}
	dest.Enabled = enabled
	dest.UpdatedAt = time.Now().UTC()
	if err := s.dests.Save(ctx, *dest); err != nil {
		return fmt.Errorf("saving destination: %w", err)
	}
	return nil
}

// Delete removes a destination configuration and its stored credential.
// Delivery records for the destination are kept.
func (s *DestinationService) Delete(ctx context.Context, id string) error {
	if _, err := s.dests.Get(ctx, id); err != nil {
		return err
	}
	if err := s.creds.DeleteToken(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("deleting credential: %w", err)
	}
	if err := s.dests.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting destination: %w", err)
	}
	logger.Info("destination %s deleted", id)
	return nil
}

// TestConnection verifies the destination is reachable with its current
// credentials.
func (s *DestinationService) TestConnection(ctx context.Context, id string) error {
	dest, err := s.dests.Get(ctx, id)
	if err != nil {
		return err
	}
	adapter, err := s.registry.Adapter(dest.Provider)
	if err != nil {
		return err
	}
	target, err := resolveTarget(ctx, dest, s.credentials, s.settings)
	if err != nil {
		return err
	}
	return adapter.TestConnection(ctx, target)
}

// validatePathTemplate rejects templates carrying unknown placeholders.
// An empty template is valid and falls back to the built-in default.
func validatePathTemplate(tmpl string) error {
	for _, ph := range placeholderPattern.FindAllString(tmpl, -1) {
		if !knownPlaceholders[ph] {
			return fmt.Errorf("%w: unknown path placeholder %s", domain.ErrInvalidInput, ph)
		}
	}
	return nil
}
