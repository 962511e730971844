package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
	"github.com/docrelay/docrelay/internal/core/ports/driving"
	"github.com/docrelay/docrelay/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// sniffSize is how many leading bytes content detection reads.
const sniffSize = 3072

// supportedMimeTypes is the closed set of content types the pipeline
// accepts. Everything else is rejected at the gate, before any
// Document is created.
var supportedMimeTypes = map[string]bool{
	"application/pdf": true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"application/vnd.ms-powerpoint":                                           true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text":         true,
	"application/vnd.oasis.opendocument.spreadsheet":  true,
	"application/vnd.oasis.opendocument.presentation": true,
	"application/rtf": true,
	"text/plain":      true,
	"text/html":       true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/tiff":      true,
}

// IngestService is the single entry point for documents: it validates,
// persists and enqueues uploads regardless of which channel they
// arrived through.
type IngestService struct {
	docs     driven.DocumentStore
	blobs    driven.BlobStore
	queue    driven.TaskQueue
	settings *SettingsService
	http     *http.Client
}

// NewIngestService creates a new ingest service.
func NewIngestService(docs driven.DocumentStore, blobs driven.BlobStore, queue driven.TaskQueue, settings *SettingsService) *IngestService {
	return &IngestService{
		docs:     docs,
		blobs:    blobs,
		queue:    queue,
		settings: settings,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// Ingest validates, persists and enqueues a document. The content type
// is sniffed from the bytes; the caller's declared type is advisory
// only. Oversized or unsupported uploads are rejected before any state
// is created.
func (s *IngestService) Ingest(ctx context.Context, req driving.IngestRequest) (*domain.Document, error) {
	if req.Filename == "" {
		return nil, fmt.Errorf("%w: filename required", domain.ErrInvalidInput)
	}
	if req.Content == nil {
		return nil, fmt.Errorf("%w: empty content", domain.ErrInvalidInput)
	}

	maxSize := s.settings.Int64(ctx, domain.KeyMaxUploadSize, 100<<20)

	// Sniff the real content type from the leading bytes.
	head := make([]byte, sniffSize)
	n, err := io.ReadFull(req.Content, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: empty content", domain.ErrInvalidInput)
	}
	head = head[:n]

	mtype := mimetype.Detect(head)
	detected := baseMimeType(mtype)
	if !supportedMimeTypes[detected] {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, detected)
	}
	if req.DeclaredType != "" && !strings.EqualFold(baseType(req.DeclaredType), detected) {
		logger.Warn("ingest: declared type %s disagrees with sniffed %s for %s; trusting content",
			req.DeclaredType, detected, req.Filename)
	}

	// Store with a hard cap one byte past the limit so an oversized
	// stream is detected without buffering it in memory.
	content := io.MultiReader(bytes.NewReader(head), req.Content)
	key, hash, err := s.blobs.Put(ctx, io.LimitReader(content, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}

	size, err := s.blobs.Size(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("checking stored size: %w", err)
	}
	if size > maxSize {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			logger.Warn("ingest: removing oversized blob %s: %v", key, delErr)
		}
		return nil, fmt.Errorf("%w: %d bytes exceeds limit %d", domain.ErrPayloadTooLarge, size, maxSize)
	}

	doc := &domain.Document{
		ID:           uuid.NewString(),
		OriginalName: req.Filename,
		SourceKey:    key,
		MimeType:     detected,
		Size:         size,
		ContentHash:  hash,
		Status:       domain.StatusReceived,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.docs.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}

	task := domain.Task{DocumentID: doc.ID, Stage: domain.StageConvert, Attempt: 1}
	if err := s.queue.Publish(ctx, task, 0); err != nil {
		return nil, fmt.Errorf("enqueueing convert task: %w", err)
	}

	logger.Info("ingest: accepted %s (%s, %d bytes) as %s", doc.OriginalName, detected, size, doc.ID)
	return doc, nil
}

// IngestURL fetches a remote document and ingests it.
func (s *IngestService) IngestURL(ctx context.Context, rawURL string) (*domain.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: unsupported url %q", domain.ErrInvalidInput, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating fetch request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}

	return s.Ingest(ctx, driving.IngestRequest{
		Filename:     remoteFilename(resp, u),
		Content:      resp.Body,
		DeclaredType: resp.Header.Get("Content-Type"),
	})
}

// remoteFilename derives a display name for a fetched document: the
// Content-Disposition filename when present, the URL path otherwise.
func remoteFilename(resp *http.Response, u *url.URL) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return path.Base(name)
			}
		}
	}
	if name := path.Base(u.Path); name != "" && name != "/" && name != "." {
		return name
	}
	return "download"
}

// baseMimeType strips detection parameters like charset.
func baseMimeType(m *mimetype.MIME) string {
	return baseType(m.String())
}

func baseType(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
