package driven

import (
	"context"

	"github.com/docrelay/docrelay/internal/core/domain"
)

// DocumentStore persists documents and their pipeline state.
type DocumentStore interface {
	// Save stores a document. Creates if new, updates if exists.
	Save(ctx context.Context, doc *domain.Document) error

	// Get retrieves a document by ID.
	Get(ctx context.Context, id string) (*domain.Document, error)

	// List returns all documents, newest first.
	List(ctx context.Context) ([]domain.Document, error)

	// UpdateStatus transitions a document's lifecycle status and
	// failure reason in one write.
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, reason string) error
}
