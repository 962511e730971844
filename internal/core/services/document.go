package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
	"github.com/docrelay/docrelay/internal/core/ports/driving"
	"github.com/docrelay/docrelay/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService exposes document inspection and control.
type DocumentService struct {
	docs       driven.DocumentStore
	deliveries driven.DeliveryStore
	queue      driven.TaskQueue
}

// NewDocumentService creates a new document service.
func NewDocumentService(docs driven.DocumentStore, deliveries driven.DeliveryStore, queue driven.TaskQueue) *DocumentService {
	return &DocumentService{
		docs:       docs,
		deliveries: deliveries,
		queue:      queue,
	}
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.docs.Get(ctx, id)
}

// List returns all documents, newest first.
func (s *DocumentService) List(ctx context.Context) ([]domain.Document, error) {
	return s.docs.List(ctx)
}

// Status returns the document together with its per-destination
// delivery breakdown.
func (s *DocumentService) Status(ctx context.Context, id string) (*driving.DocumentStatusView, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	attempts, err := s.deliveries.ListByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	return &driving.DocumentStatusView{
		Document:   *doc,
		Deliveries: attempts,
	}, nil
}

// Cancel stops further pipeline work on a document. The stage currently
// holding it observes the status at its next checkpoint and enqueues
// nothing after it.
func (s *DocumentService) Cancel(ctx context.Context, id string) error {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status.IsTerminal() {
		return fmt.Errorf("%w: document is already %s", domain.ErrInvalidInput, doc.Status)
	}
	if err := s.docs.UpdateStatus(ctx, id, domain.StatusCancelled, ""); err != nil {
		return fmt.Errorf("cancelling document: %w", err)
	}
	logger.Info("document %s cancelled", id)
	return nil
}

// RetryDelivery re-enqueues one failed or needs_reauth delivery with a
// fresh attempt counter.
func (s *DocumentService) RetryDelivery(ctx context.Context, documentID, destinationID string) error {
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status == domain.StatusCancelled {
		return fmt.Errorf("%w: document is cancelled", domain.ErrInvalidInput)
	}

	attempt, err := s.deliveries.Get(ctx, documentID, destinationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("no delivery for %s to %s: %w", documentID, destinationID, domain.ErrNotFound)
		}
		return fmt.Errorf("loading delivery: %w", err)
	}
	switch attempt.State {
	case domain.DeliveryFailedTerminal, domain.DeliveryNeedsReauth, domain.DeliveryFailedRetryable:
	default:
		return fmt.Errorf("%w: delivery is %s, only failed deliveries can be retried", domain.ErrInvalidInput, attempt.State)
	}

	attempt.State = domain.DeliveryPending
	attempt.Attempts = 0
	attempt.LastError = ""
	attempt.LastErrorClass = ""
	attempt.NextRetryAt = time.Time{}
	attempt.UpdatedAt = time.Now().UTC()
	if err := s.deliveries.Save(ctx, *attempt); err != nil {
		return fmt.Errorf("resetting delivery: %w", err)
	}

	if err := s.docs.UpdateStatus(ctx, documentID, domain.StatusDelivering, ""); err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}

	task := domain.Task{
		DocumentID:    documentID,
		Stage:         domain.StageDeliver,
		DestinationID: destinationID,
		Attempt:       1,
	}
	if err := s.queue.Publish(ctx, task, 0); err != nil {
		return fmt.Errorf("enqueueing deliver task: %w", err)
	}
	logger.Info("delivery of %s to %s re-enqueued", documentID, destinationID)
	return nil
}
