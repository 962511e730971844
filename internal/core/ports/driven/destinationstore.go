package driven

import (
	"context"

	"github.com/docrelay/docrelay/internal/core/domain"
)

// DestinationStore persists destination configurations.
type DestinationStore interface {
	// Save stores a destination. Creates if new, updates if exists.
	Save(ctx context.Context, dest domain.DestinationConfig) error

	// Get retrieves a destination by ID.
	Get(ctx context.Context, id string) (*domain.DestinationConfig, error)

	// List returns all destinations.
	List(ctx context.Context) ([]domain.DestinationConfig, error)

	// ListEnabled returns destinations the dispatcher fans out to.
	ListEnabled(ctx context.Context) ([]domain.DestinationConfig, error)

	// Delete removes a destination configuration. Delivery records for
	// the destination are kept.
	Delete(ctx context.Context, id string) error
}
