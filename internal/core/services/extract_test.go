package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrelay/docrelay/internal/adapters/driven/blob"
	"github.com/docrelay/docrelay/internal/adapters/driven/storage/memory"
	"github.com/docrelay/docrelay/internal/core/domain"
)

// fakeOCR is a scripted driven.OCRService for tests.
type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) RecognizeText(_ context.Context, _ io.Reader) (string, error) {
	return f.text, f.err
}

// fakeMetadata is a scripted driven.MetadataService for tests.
type fakeMetadata struct {
	meta *domain.ExtractedMetadata
	err  error
}

func (f *fakeMetadata) ExtractFields(_ context.Context, _, _ string) (*domain.ExtractedMetadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.meta, nil
}

type extractFixture struct {
	docs  *memory.DocumentStore
	blobs *blob.Store
	queue *memory.TaskQueue
}

func newExtractFixture(t *testing.T) *extractFixture {
	t.Helper()
	blobs, err := blob.New(t.TempDir())
	require.NoError(t, err)
	return &extractFixture{
		docs:  memory.NewDocumentStore(),
		blobs: blobs,
		queue: memory.NewTaskQueue(time.Minute),
	}
}

func (f *extractFixture) storeCanonical(t *testing.T) *domain.Document {
	t.Helper()
	ctx := context.Background()
	key, _, err := f.blobs.Put(ctx, bytes.NewReader(pdfBytes))
	require.NoError(t, err)

	doc := &domain.Document{
		ID:           "doc-1",
		OriginalName: "invoice.pdf",
		SourceKey:    key,
		CanonicalKey: key,
		MimeType:     domain.MimeTypePDF,
		Status:       domain.StatusReceived,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, f.docs.Save(ctx, doc))
	return doc
}

func extractTask(docID string) domain.Task {
	return domain.Task{DocumentID: docID, Stage: domain.StageExtract, Attempt: 1}
}

// TestExtract_RecordsMetadata tests the happy path through OCR and
// field extraction.
func TestExtract_RecordsMetadata(t *testing.T) {
	ctx := context.Background()
	f := newExtractFixture(t)
	doc := f.storeCanonical(t)

	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	svc := NewExtractService(f.docs, f.blobs, f.queue,
		&fakeOCR{text: "Invoice No 42"},
		&fakeMetadata{meta: &domain.ExtractedMetadata{Title: "Invoice 42", Date: date, Classification: "invoice"}},
		0)

	require.NoError(t, svc.Run(ctx, extractTask(doc.ID)))

	stored, err := f.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Metadata)
	assert.Equal(t, "Invoice 42", stored.Metadata.Title)
	assert.Equal(t, "Invoice No 42", stored.Metadata.Text)
	assert.Empty(t, stored.ExtractionError)

	claimed, err := f.queue.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, domain.StageDispatch, claimed[0].Task.Stage)
}

// TestExtract_FailureNeverBlocksDelivery tests that a broken extraction
// backend is recorded and dispatch still happens.
func TestExtract_FailureNeverBlocksDelivery(t *testing.T) {
	ctx := context.Background()
	f := newExtractFixture(t)
	doc := f.storeCanonical(t)

	svc := NewExtractService(f.docs, f.blobs, f.queue,
		&fakeOCR{err: errors.New("ocr service down")}, &fakeMetadata{}, 0)

	require.NoError(t, svc.Run(ctx, extractTask(doc.ID)))

	stored, err := f.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Metadata)
	assert.Contains(t, stored.ExtractionError, "ocr service down")

	claimed, err := f.queue.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, domain.StageDispatch, claimed[0].Task.Stage)
}

// TestExtract_NoBackendsConfigured tests the fully optional stage.
func TestExtract_NoBackendsConfigured(t *testing.T) {
	ctx := context.Background()
	f := newExtractFixture(t)
	doc := f.storeCanonical(t)

	svc := NewExtractService(f.docs, f.blobs, f.queue, nil, nil, 0)
	require.NoError(t, svc.Run(ctx, extractTask(doc.ID)))

	stored, err := f.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Metadata)
	assert.NotEmpty(t, stored.ExtractionError)

	pending, err := f.queue.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

// TestExtract_OCROnly tests running with text recovery but no metadata
// service.
func TestExtract_OCROnly(t *testing.T) {
	ctx := context.Background()
	f := newExtractFixture(t)
	doc := f.storeCanonical(t)

	svc := NewExtractService(f.docs, f.blobs, f.queue, &fakeOCR{text: "recovered text"}, nil, 0)
	require.NoError(t, svc.Run(ctx, extractTask(doc.ID)))

	stored, err := f.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Metadata)
	assert.Equal(t, "recovered text", stored.Metadata.Text)
	assert.Empty(t, stored.Metadata.Title)
}

// TestExtract_RedeliveryIsIdempotent tests that extraction never runs
// twice for the same document.
func TestExtract_RedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newExtractFixture(t)
	doc := f.storeCanonical(t)

	ocr := &fakeOCR{text: "once"}
	svc := NewExtractService(f.docs, f.blobs, f.queue, ocr, nil, 0)

	require.NoError(t, svc.Run(ctx, extractTask(doc.ID)))
	ocr.err = errors.New("must not be called again")
	require.NoError(t, svc.Run(ctx, extractTask(doc.ID)))

	stored, err := f.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Metadata)
	assert.Equal(t, "once", stored.Metadata.Text)
}

// TestExtract_CancelledDocumentShortCircuits tests the cancel checkpoint.
func TestExtract_CancelledDocumentShortCircuits(t *testing.T) {
	ctx := context.Background()
	f := newExtractFixture(t)
	doc := f.storeCanonical(t)
	require.NoError(t, f.docs.UpdateStatus(ctx, doc.ID, domain.StatusCancelled, ""))

	svc := NewExtractService(f.docs, f.blobs, f.queue, nil, nil, 0)
	err := svc.Run(ctx, extractTask(doc.ID))
	assert.ErrorIs(t, err, domain.ErrDocumentCancelled)
}
