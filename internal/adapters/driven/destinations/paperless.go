package destinations

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Destination settings recognised by the Paperless adapter.
const (
	// SettingPaperlessURL is the DMS base URL, e.g.
	// https://paperless.example.org.
	SettingPaperlessURL = "url"
)

// PaperlessAdapter delivers documents into a Paperless-style DMS via
// its consume endpoint. The DMS runs its own processing; the adapter
// only hands over the PDF with suggested metadata.
type PaperlessAdapter struct {
	http *http.Client
}

// NewPaperlessAdapter creates a new Paperless adapter.
func NewPaperlessAdapter() *PaperlessAdapter {
	return &PaperlessAdapter{
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Provider returns the provider type this adapter serves.
func (a *PaperlessAdapter) Provider() domain.ProviderType {
	return domain.ProviderPaperless
}

// Deliver posts the document to the consume endpoint. The returned
// reference is the DMS consumption task id.
func (a *PaperlessAdapter) Deliver(ctx context.Context, req driven.DeliveryRequest) (*driven.DeliveryResult, error) {
	base, token, err := a.endpoint(req.Target)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("document", req.Filename)
	if err != nil {
		return nil, domain.Classified(domain.ErrClassInternal, fmt.Errorf("building form: %w", err))
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return nil, domain.Classified(domain.ErrClassInternal, fmt.Errorf("buffering document: %w", err))
	}
	if title := suggestedTitle(req.Document); title != "" {
		if err := mw.WriteField("title", title); err != nil {
			return nil, domain.Classified(domain.ErrClassInternal, fmt.Errorf("building form: %w", err))
		}
	}
	if err := mw.Close(); err != nil {
		return nil, domain.Classified(domain.ErrClassInternal, fmt.Errorf("building form: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		base+"/api/documents/post_document/", &body)
	if err != nil {
		return nil, domain.Classified(domain.ErrClassInternal, fmt.Errorf("creating request: %w", err))
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Authorization", "Token "+token)

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return nil, domain.Classified(domain.ErrClassTransient, fmt.Errorf("posting document: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, domain.Classified(classifyStatus(resp.StatusCode),
			fmt.Errorf("consume endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))))
	}

	taskID, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return nil, domain.Classified(domain.ErrClassTransient, fmt.Errorf("reading response: %w", err))
	}
	return &driven.DeliveryResult{RemoteRef: strings.Trim(strings.TrimSpace(string(taskID)), `"`)}, nil
}

// TestConnection verifies the DMS accepts the API token.
func (a *PaperlessAdapter) TestConnection(ctx context.Context, target driven.Target) error {
	base, token, err := a.endpoint(target)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/", nil)
	if err != nil {
		return domain.Classified(domain.ErrClassInternal, fmt.Errorf("creating request: %w", err))
	}
	httpReq.Header.Set("Authorization", "Token "+token)

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("reaching dms: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Classified(classifyStatus(resp.StatusCode),
			fmt.Errorf("dms returned %d", resp.StatusCode))
	}
	return nil
}

func (a *PaperlessAdapter) endpoint(target driven.Target) (string, string, error) {
	dest := target.Destination
	base := strings.TrimRight(dest.Setting(SettingPaperlessURL), "/")
	if base == "" {
		return "", "", domain.Classified(domain.ErrClassValidation,
			fmt.Errorf("destination %s has no url configured", dest.Name))
	}
	token := target.Secrets[domain.KeyPaperlessToken]
	if token == "" {
		return "", "", domain.Classified(domain.ErrClassAuthExpired,
			fmt.Errorf("destination %s: %s is not configured", dest.Name, domain.KeyPaperlessToken))
	}
	return base, token, nil
}

// suggestedTitle prefers the extracted title over the delivered name.
func suggestedTitle(doc domain.Document) string {
	if doc.Metadata != nil && doc.Metadata.Title != "" {
		return doc.Metadata.Title
	}
	return strings.TrimSuffix(doc.DeliveredName(), ".pdf")
}
