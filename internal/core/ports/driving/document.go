package driving

import (
	"context"

	"github.com/docrelay/docrelay/internal/core/domain"
)

// DocumentStatusView combines a document with its per-destination
// delivery state for display.
type DocumentStatusView struct {
	// Document is the document record.
	Document domain.Document

	// Deliveries lists the delivery attempt per destination the
	// dispatcher has fanned out to.
	Deliveries []domain.DeliveryAttempt
}

// DocumentService exposes document inspection and control.
type DocumentService interface {
	// Get retrieves a document by ID.
	Get(ctx context.Context, id string) (*domain.Document, error)

	// List returns all documents, newest first.
	List(ctx context.Context) ([]domain.Document, error)

	// Status returns the document with its delivery breakdown.
	Status(ctx context.Context, id string) (*DocumentStatusView, error)

	// Cancel stops further pipeline work on a document. Stages that
	// already completed stay completed; an in-flight stage finishes
	// but enqueues nothing.
	Cancel(ctx context.Context, id string) error

	// RetryDelivery re-enqueues one failed or needs_reauth delivery
	// with a fresh attempt counter.
	RetryDelivery(ctx context.Context, documentID, destinationID string) error
}
