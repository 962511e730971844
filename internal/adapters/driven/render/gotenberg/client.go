// Package gotenberg converts documents to PDF through a Gotenberg
// rendering service. Office formats go through the LibreOffice route,
// HTML through the Chromium route. The pipeline treats the renderer as
// a black box: bytes in, PDF bytes out.
package gotenberg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
	"github.com/docrelay/docrelay/internal/logger"
)

const (
	libreofficeRoute = "/forms/libreoffice/convert"
	chromiumRoute    = "/forms/chromium/convert/html"
	healthRoute      = "/health"
)

// Client is an HTTP implementation of driven.Renderer.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ driven.Renderer = (*Client)(nil)

// New creates a renderer client for the given base URL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Render converts the named input stream to PDF.
func (c *Client) Render(ctx context.Context, filename string, r io.Reader) (*driven.RenderResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	// Chromium's HTML route expects the file to be named index.html.
	uploadName := filename
	route := libreofficeRoute
	if ext := strings.ToLower(path.Ext(filename)); ext == ".html" || ext == ".htm" {
		route = chromiumRoute
		uploadName = "index.html"
	}

	part, err := writer.CreateFormFile("files", uploadName)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("writing form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, &body)
	if err != nil {
		return nil, fmt.Errorf("creating render request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	logger.Debug("renderer: converting %s via %s", filename, route)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Classified(domain.ErrClassTransient,
			fmt.Errorf("calling renderer: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("renderer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, domain.Classified(domain.ErrClassTransient, err)
		}
		return nil, domain.Classified(domain.ErrClassPermanent, err)
	}

	return &driven.RenderResult{PDF: resp.Body}, nil
}

// Healthy reports whether the rendering service is reachable.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthRoute, nil)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling renderer health endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("renderer unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
