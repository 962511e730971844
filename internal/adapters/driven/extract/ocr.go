// Package extract holds HTTP clients for the optional extraction
// backends: an OCR service for full-text recovery and an AI metadata
// service for structured fields. Both are best-effort; their failures
// never block delivery.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// OCRClient is an HTTP implementation of driven.OCRService. The service
// accepts a PDF body and returns recognised plain text.
type OCRClient struct {
	baseURL string
	http    *http.Client
}

var _ driven.OCRService = (*OCRClient)(nil)

// NewOCRClient creates an OCR client for the given base URL.
func NewOCRClient(baseURL string, timeout time.Duration) *OCRClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OCRClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// RecognizeText returns the recovered plain text for the PDF stream.
func (c *OCRClient) RecognizeText(ctx context.Context, pdf io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", pdf)
	if err != nil {
		return "", fmt.Errorf("creating ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ocr service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr service returned %d", resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding ocr response: %w", err)
	}
	return result.Text, nil
}

// MetadataClient is an HTTP implementation of driven.MetadataService.
type MetadataClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ driven.MetadataService = (*MetadataClient)(nil)

// NewMetadataClient creates a metadata client for the given base URL.
// The API key may be empty when the service needs none.
func NewMetadataClient(baseURL, apiKey string, timeout time.Duration) *MetadataClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &MetadataClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// extractRequest is the wire request for field extraction.
type extractRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// extractResponse is the wire response for field extraction.
type extractResponse struct {
	Title          string `json:"title"`
	Date           string `json:"date"`
	Classification string `json:"classification"`
}

// ExtractFields derives title, date and classification from the
// document's text and original name.
func (c *MetadataClient) ExtractFields(ctx context.Context, originalName, text string) (*domain.ExtractedMetadata, error) {
	body, err := json.Marshal(extractRequest{Filename: originalName, Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshalling extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("creating extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling metadata service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata service returned %d", resp.StatusCode)
	}

	var result extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding extract response: %w", err)
	}

	meta := &domain.ExtractedMetadata{
		Title:          result.Title,
		Classification: result.Classification,
		Text:           text,
	}
	if result.Date != "" {
		// The service replies with a bare date; ignore unparseable ones.
		if d, err := time.Parse("2006-01-02", result.Date); err == nil {
			meta.Date = d
		}
	}
	return meta, nil
}
