package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
	"github.com/docrelay/docrelay/internal/logger"
)

// ConvertService runs the conversion stage: it normalises the raw
// upload to the canonical PDF artifact. PDFs pass through untouched;
// everything else goes to the external renderer.
type ConvertService struct {
	docs     driven.DocumentStore
	blobs    driven.BlobStore
	queue    driven.TaskQueue
	renderer driven.Renderer
}

// NewConvertService creates a new convert service.
func NewConvertService(docs driven.DocumentStore, blobs driven.BlobStore, queue driven.TaskQueue, renderer driven.Renderer) *ConvertService {
	return &ConvertService{
		docs:     docs,
		blobs:    blobs,
		queue:    queue,
		renderer: renderer,
	}
}

// Run executes one convert task. The handler is idempotent: a
// redelivered task for an already converted document just re-enqueues
// the next stage.
func (s *ConvertService) Run(ctx context.Context, task domain.Task) error {
	doc, err := s.docs.Get(ctx, task.DocumentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Classified(domain.ErrClassPermanent,
				fmt.Errorf("convert: document %s vanished", task.DocumentID))
		}
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("loading document: %w", err))
	}

	if doc.Status == domain.StatusCancelled {
		return domain.ErrDocumentCancelled
	}
	if doc.CanonicalKey != "" {
		// Crash after conversion but before ack: just move on.
		return s.enqueueNext(ctx, doc.ID)
	}

	if err := s.docs.UpdateStatus(ctx, doc.ID, domain.StatusConverting, ""); err != nil {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("marking converting: %w", err))
	}

	canonicalKey := doc.SourceKey
	if !doc.IsCanonical() {
		canonicalKey, err = s.render(ctx, doc)
		if err != nil {
			return err
		}
	}

	doc.CanonicalKey = canonicalKey
	doc.PageCount = s.countPages(ctx, canonicalKey)
	if err := s.docs.Save(ctx, doc); err != nil {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("saving converted document: %w", err))
	}

	logger.Debug("convert: %s canonical at %s (%d pages)", doc.ID, canonicalKey, doc.PageCount)
	return s.enqueueNext(ctx, doc.ID)
}

// Fail marks a document terminally failed after conversion retries are
// exhausted. Conversion is the only stage whose failure fails the
// whole document.
func (s *ConvertService) Fail(ctx context.Context, documentID string) {
	if err := s.docs.UpdateStatus(ctx, documentID, domain.StatusFailed, domain.FailureConversion); err != nil {
		logger.Error("convert: recording failure for %s: %v", documentID, err)
	}
}

// render sends the raw upload through the external renderer and stores
// the resulting PDF.
func (s *ConvertService) render(ctx context.Context, doc *domain.Document) (string, error) {
	src, err := s.blobs.Open(ctx, doc.SourceKey)
	if err != nil {
		return "", domain.Classified(domain.ErrClassInternal, fmt.Errorf("opening source blob: %w", err))
	}
	defer src.Close()

	result, err := s.renderer.Render(ctx, doc.OriginalName, src)
	if err != nil {
		// The renderer client already classified this.
		return "", fmt.Errorf("rendering %s: %w", doc.ID, err)
	}
	defer result.PDF.Close()

	key, _, err := s.blobs.Put(ctx, result.PDF)
	if err != nil {
		return "", domain.Classified(domain.ErrClassTransient, fmt.Errorf("storing canonical pdf: %w", err))
	}
	return key, nil
}

// countPages reads the canonical PDF's page count. Best-effort: a
// malformed but renderable PDF just records zero.
func (s *ConvertService) countPages(ctx context.Context, key string) int {
	rc, err := s.blobs.Open(ctx, key)
	if err != nil {
		logger.Warn("convert: opening canonical blob for page count: %v", err)
		return 0
	}
	defer rc.Close()

	rs, ok := rc.(io.ReadSeeker)
	if !ok {
		return 0
	}
	count, err := api.PageCount(rs, nil)
	if err != nil {
		logger.Warn("convert: counting pages: %v", err)
		return 0
	}
	return count
}

func (s *ConvertService) enqueueNext(ctx context.Context, documentID string) error {
	task := domain.Task{DocumentID: documentID, Stage: domain.StageExtract, Attempt: 1}
	if err := s.queue.Publish(ctx, task, 0); err != nil {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("enqueueing extract task: %w", err))
	}
	return nil
}
