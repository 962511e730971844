package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrelay/docrelay/internal/adapters/driven/blob"
	"github.com/docrelay/docrelay/internal/adapters/driven/storage/memory"
	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driving"
)

// pdfBytes is a minimal well-formed one-page PDF for content sniffing
// and parsing.
var pdfBytes = []byte("%PDF-1.4\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
	"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n" +
	"xref\n0 4\n" +
	"0000000000 65535 f \n" +
	"0000000009 00000 n \n" +
	"0000000058 00000 n \n" +
	"0000000115 00000 n \n" +
	"trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n186\n%%EOF\n")

func newIngestFixture(t *testing.T) (*IngestService, *memory.DocumentStore, *memory.TaskQueue) {
	t.Helper()
	blobs, err := blob.New(t.TempDir())
	require.NoError(t, err)

	docs := memory.NewDocumentStore()
	queue := memory.NewTaskQueue(time.Minute)
	settings := NewSettingsService(nil, memory.NewSettingStore())
	return NewIngestService(docs, blobs, queue, settings), docs, queue
}

// TestIngest_AcceptsPDF tests that a PDF upload creates a document and
// enqueues a convert task.
func TestIngest_AcceptsPDF(t *testing.T) {
	ctx := context.Background()
	svc, docs, queue := newIngestFixture(t)

	doc, err := svc.Ingest(ctx, driving.IngestRequest{
		Filename: "invoice.pdf",
		Content:  bytes.NewReader(pdfBytes),
	})
	require.NoError(t, err)
	assert.Equal(t, "invoice.pdf", doc.OriginalName)
	assert.Equal(t, "application/pdf", doc.MimeType)
	assert.Equal(t, domain.StatusReceived, doc.Status)
	assert.NotEmpty(t, doc.SourceKey)
	assert.NotEmpty(t, doc.ContentHash)
	assert.Equal(t, int64(len(pdfBytes)), doc.Size)

	stored, err := docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, stored.ID)

	claimed, err := queue.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, domain.StageConvert, claimed[0].Task.Stage)
	assert.Equal(t, doc.ID, claimed[0].Task.DocumentID)
}

// TestIngest_RejectsUnsupportedType tests that unrecognised content is
// rejected before any document is created.
func TestIngest_RejectsUnsupportedType(t *testing.T) {
	ctx := context.Background()
	svc, docs, queue := newIngestFixture(t)

	// An ELF header sniffs as an executable.
	_, err := svc.Ingest(ctx, driving.IngestRequest{
		Filename: "evil.pdf",
		Content:  bytes.NewReader([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}),
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)

	list, err := docs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

// TestIngest_DeclaredTypeIsAdvisory tests that a lying declared type
// does not override content sniffing.
func TestIngest_DeclaredTypeIsAdvisory(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newIngestFixture(t)

	doc, err := svc.Ingest(ctx, driving.IngestRequest{
		Filename:     "report.pdf",
		Content:      bytes.NewReader(pdfBytes),
		DeclaredType: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.MimeType)
}

// TestIngest_RejectsOversizedUpload tests the configured size cap.
func TestIngest_RejectsOversizedUpload(t *testing.T) {
	ctx := context.Background()
	blobs, err := blob.New(t.TempDir())
	require.NoError(t, err)

	store := memory.NewSettingStore()
	settings := NewSettingsService(nil, store)
	require.NoError(t, settings.Set(ctx, domain.KeyMaxUploadSize, "64"))

	svc := NewIngestService(memory.NewDocumentStore(), blobs, memory.NewTaskQueue(time.Minute), settings)

	big := append([]byte{}, pdfBytes...)
	big = append(big, bytes.Repeat([]byte("x"), 200)...)
	_, err = svc.Ingest(ctx, driving.IngestRequest{
		Filename: "huge.pdf",
		Content:  bytes.NewReader(big),
	})
	assert.ErrorIs(t, err, domain.ErrPayloadTooLarge)
}

// TestIngest_RejectsEmptyInput tests filename and content validation.
func TestIngest_RejectsEmptyInput(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newIngestFixture(t)

	_, err := svc.Ingest(ctx, driving.IngestRequest{Content: bytes.NewReader(pdfBytes)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Ingest(ctx, driving.IngestRequest{Filename: "a.pdf"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Ingest(ctx, driving.IngestRequest{Filename: "a.pdf", Content: strings.NewReader("")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// TestIngestURL_FetchesRemoteDocument tests ingestion from a URL.
func TestIngestURL_FetchesRemoteDocument(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newIngestFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="statement.pdf"`)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdfBytes)
	}))
	defer srv.Close()

	doc, err := svc.IngestURL(ctx, srv.URL+"/files/123")
	require.NoError(t, err)
	assert.Equal(t, "statement.pdf", doc.OriginalName)
	assert.Equal(t, "application/pdf", doc.MimeType)
}

// TestIngestURL_RejectsBadInput tests scheme validation and upstream
// failures.
func TestIngestURL_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newIngestFixture(t)

	_, err := svc.IngestURL(ctx, "ftp://example.com/doc.pdf")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err = svc.IngestURL(ctx, srv.URL+"/missing.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprint(http.StatusNotFound))
}

// TestRemoteFilename tests display name derivation for fetched files.
func TestRemoteFilename(t *testing.T) {
	tests := []struct {
		name        string
		disposition string
		url         string
		want        string
	}{
		{"from content disposition", `attachment; filename="report.docx"`, "http://x/y", "report.docx"},
		{"from url path", "", "http://x/files/scan.pdf", "scan.pdf"},
		{"fallback", "", "http://x/", "download"},
		{"strips directories", `attachment; filename="../../etc/passwd"`, "http://x/y", "passwd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.disposition != "" {
				resp.Header.Set("Content-Disposition", tt.disposition)
			}
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			assert.Equal(t, tt.want, remoteFilename(resp, req.URL))
		})
	}
}
