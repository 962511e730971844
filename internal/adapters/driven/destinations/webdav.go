package destinations

import (
	"context"
	"fmt"
	"strings"

	"github.com/studio-b12/gowebdav"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Destination settings recognised by the WebDAV adapter.
const (
	// SettingWebDAVURL is the share root, e.g.
	// https://cloud.example.org/remote.php/dav/files/user/.
	SettingWebDAVURL = "url"

	// SettingWebDAVUsername is the login name. The password comes from
	// the settings store.
	SettingWebDAVUsername = "username"
)

// WebDAVAdapter delivers documents to a WebDAV share.
type WebDAVAdapter struct{}

// NewWebDAVAdapter creates a new WebDAV adapter.
func NewWebDAVAdapter() *WebDAVAdapter {
	return &WebDAVAdapter{}
}

// Provider returns the provider type this adapter serves.
func (a *WebDAVAdapter) Provider() domain.ProviderType {
	return domain.ProviderWebDAV
}

// Deliver uploads the document, creating the directory chain first.
// Writing the same path twice overwrites.
func (a *WebDAVAdapter) Deliver(_ context.Context, req driven.DeliveryRequest) (*driven.DeliveryResult, error) {
	client, err := a.client(req.Target)
	if err != nil {
		return nil, err
	}

	if req.Path != "" {
		if err := client.MkdirAll(req.Path, 0o755); err != nil {
			return nil, classifyWebDAVErr(fmt.Errorf("creating %s: %w", req.Path, err))
		}
	}

	remotePath := req.Filename
	if req.Path != "" {
		remotePath = req.Path + "/" + req.Filename
	}
	if err := client.WriteStream(remotePath, req.Content, 0o644); err != nil {
		return nil, classifyWebDAVErr(fmt.Errorf("writing %s: %w", remotePath, err))
	}
	return &driven.DeliveryResult{RemoteRef: remotePath}, nil
}

// TestConnection verifies the share is reachable with the credentials.
func (a *WebDAVAdapter) TestConnection(_ context.Context, target driven.Target) error {
	client, err := a.client(target)
	if err != nil {
		return err
	}
	if err := client.Connect(); err != nil {
		return classifyWebDAVErr(fmt.Errorf("connecting: %w", err))
	}
	return nil
}

func (a *WebDAVAdapter) client(target driven.Target) (*gowebdav.Client, error) {
	dest := target.Destination
	base := dest.Setting(SettingWebDAVURL)
	if base == "" {
		return nil, domain.Classified(domain.ErrClassValidation,
			fmt.Errorf("destination %s has no url configured", dest.Name))
	}
	return gowebdav.NewClient(base, dest.Setting(SettingWebDAVUsername),
		target.Secrets[domain.KeyWebDAVPassword]), nil
}

// classifyWebDAVErr maps WebDAV failures onto the error taxonomy. The
// client wraps HTTP failures as path errors carrying the status code in
// the message.
func classifyWebDAVErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return domain.Classified(domain.ErrClassAuthExpired, err)
	case strings.Contains(msg, "429") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "504"):
		return domain.Classified(domain.ErrClassTransient, err)
	case strings.Contains(msg, "404") || strings.Contains(msg, "409") || strings.Contains(msg, "507"):
		return domain.Classified(domain.ErrClassPermanent, err)
	default:
		return domain.Classified(classifyNetErr(err), err)
	}
}
