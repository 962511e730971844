package driven

import (
	"context"

	"github.com/docrelay/docrelay/internal/core/domain"
)

// DeliveryStore persists delivery attempts keyed by
// (document id, destination id).
type DeliveryStore interface {
	// Save stores an attempt. Creates if new, updates if exists.
	Save(ctx context.Context, attempt domain.DeliveryAttempt) error

	// Get retrieves the attempt for one pair. Returns
	// domain.ErrNotFound if dispatch never reached the pair.
	Get(ctx context.Context, documentID, destinationID string) (*domain.DeliveryAttempt, error)

	// ListByDocument returns all attempts for a document.
	ListByDocument(ctx context.Context, documentID string) ([]domain.DeliveryAttempt, error)

	// ListByDestination returns all attempts for a destination.
	ListByDestination(ctx context.Context, destinationID string) ([]domain.DeliveryAttempt, error)

	// MarkNeedsReauth flips every non-final attempt for a destination
	// to needs_reauth, so an expired credential surfaces on each
	// affected document without failing it.
	MarkNeedsReauth(ctx context.Context, destinationID string) error
}
