package driven

import (
	"context"
	"io"

	"github.com/docrelay/docrelay/internal/core/domain"
)

// OCRService recovers full text from a canonical PDF. Optional:
// extraction proceeds without text when unconfigured.
type OCRService interface {
	// RecognizeText returns the recovered plain text for the PDF
	// stream, empty when the document has no recoverable text.
	RecognizeText(ctx context.Context, pdf io.Reader) (string, error)
}

// MetadataService asks the external AI service for structured fields.
// Optional: extraction falls back to filename-derived metadata when
// unconfigured.
type MetadataService interface {
	// ExtractFields derives title, date and classification from the
	// document's text and original name.
	ExtractFields(ctx context.Context, originalName, text string) (*domain.ExtractedMetadata, error)
}
