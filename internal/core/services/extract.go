package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
	"github.com/docrelay/docrelay/internal/logger"
)

// ExtractService runs the extraction stage: OCR text recovery followed
// by AI field extraction. The whole stage is best-effort; any failure
// is recorded on the document and the pipeline moves on to dispatch.
type ExtractService struct {
	docs     driven.DocumentStore
	blobs    driven.BlobStore
	queue    driven.TaskQueue
	ocr      driven.OCRService
	metadata driven.MetadataService
	timeout  time.Duration
}

// NewExtractService creates a new extract service. Both backends are
// optional and may be nil.
func NewExtractService(docs driven.DocumentStore, blobs driven.BlobStore, queue driven.TaskQueue, ocr driven.OCRService, metadata driven.MetadataService, timeout time.Duration) *ExtractService {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ExtractService{
		docs:     docs,
		blobs:    blobs,
		queue:    queue,
		ocr:      ocr,
		metadata: metadata,
		timeout:  timeout,
	}
}

// Run executes one extract task. It never returns a terminal error for
// backend failures: extraction must not block delivery.
func (s *ExtractService) Run(ctx context.Context, task domain.Task) error {
	doc, err := s.docs.Get(ctx, task.DocumentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Classified(domain.ErrClassPermanent,
				fmt.Errorf("extract: document %s vanished", task.DocumentID))
		}
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("loading document: %w", err))
	}

	if doc.Status == domain.StatusCancelled {
		return domain.ErrDocumentCancelled
	}
	if doc.Metadata != nil || doc.ExtractionError != "" {
		// Redelivered after a crash between save and ack.
		return s.enqueueNext(ctx, doc.ID)
	}

	if err := s.docs.UpdateStatus(ctx, doc.ID, domain.StatusExtracting, ""); err != nil {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("marking extracting: %w", err))
	}

	meta, extractErr := s.extract(ctx, doc)
	if extractErr != nil {
		doc.ExtractionError = extractErr.Error()
		logger.Warn("extract: %s: %v (continuing without metadata)", doc.ID, extractErr)
	} else {
		doc.Metadata = meta
	}

	if err := s.docs.Save(ctx, doc); err != nil {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("saving extraction result: %w", err))
	}

	return s.enqueueNext(ctx, doc.ID)
}

// extract runs OCR then field extraction against the canonical PDF.
func (s *ExtractService) extract(ctx context.Context, doc *domain.Document) (*domain.ExtractedMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var text string
	if s.ocr != nil {
		pdf, err := s.blobs.Open(ctx, doc.CanonicalKey)
		if err != nil {
			return nil, fmt.Errorf("opening canonical pdf: %w", err)
		}
		text, err = s.ocr.RecognizeText(ctx, pdf)
		pdf.Close()
		if err != nil {
			return nil, fmt.Errorf("ocr: %w", err)
		}
	}

	if s.metadata == nil {
		if s.ocr == nil {
			return nil, errors.New("no extraction backend configured")
		}
		return &domain.ExtractedMetadata{Text: text}, nil
	}

	meta, err := s.metadata.ExtractFields(ctx, doc.OriginalName, text)
	if err != nil {
		return nil, fmt.Errorf("metadata extraction: %w", err)
	}
	if meta.Text == "" {
		meta.Text = text
	}
	return meta, nil
}

func (s *ExtractService) enqueueNext(ctx context.Context, documentID string) error {
	task := domain.Task{DocumentID: documentID, Stage: domain.StageDispatch, Attempt: 1}
	if err := s.queue.Publish(ctx, task, 0); err != nil {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("enqueueing dispatch task: %w", err))
	}
	return nil
}
