package driving

import (
	"context"

	"github.com/docrelay/docrelay/internal/core/domain"
)

// DestinationService manages destination configurations.
type DestinationService interface {
	// Save creates or updates a destination. Validates the provider
	// type against the closed set and the path template's
	// placeholders.
	Save(ctx context.Context, dest domain.DestinationConfig) (*domain.DestinationConfig, error)

	// Get retrieves a destination by ID.
	Get(ctx context.Context, id string) (*domain.DestinationConfig, error)

	// List returns all destinations.
	List(ctx context.Context) ([]domain.DestinationConfig, error)

	// SetEnabled toggles a destination in or out of the dispatch
	// fan-out. Disabling does not touch existing delivery records.
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// Delete removes a destination configuration and its credential.
	Delete(ctx context.Context, id string) error

	// TestConnection verifies the destination is reachable with its
	// current credentials.
	TestConnection(ctx context.Context, id string) error
}
