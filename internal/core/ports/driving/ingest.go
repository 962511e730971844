package driving

import (
	"context"
	"io"

	"github.com/docrelay/docrelay/internal/core/domain"
)

// IngestRequest describes one document entering the pipeline.
type IngestRequest struct {
	// Filename is the name the document arrived under. It is kept
	// verbatim as the document's original name.
	Filename string

	// Content is the raw upload stream.
	Content io.Reader

	// DeclaredType is the caller's claimed MIME type, if any. The
	// gate sniffs content and distrusts this when they disagree.
	DeclaredType string
}

// IngestService is the single entry point for documents. Every intake
// channel (upload, URL fetch, mail inbox, watched directory) funnels
// through it.
type IngestService interface {
	// Ingest validates, persists and enqueues a document. Returns
	// the stored document in status received, with the first convert
	// task already queued.
	Ingest(ctx context.Context, req IngestRequest) (*domain.Document, error)

	// IngestURL fetches a remote document and ingests it. The
	// filename is derived from the URL path when the response names
	// none.
	IngestURL(ctx context.Context, rawURL string) (*domain.Document, error)
}
