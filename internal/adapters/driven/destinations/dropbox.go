package destinations

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/users"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// DropboxAdapter delivers documents into a Dropbox folder. Parent
// folders are created implicitly by the upload endpoint.
type DropboxAdapter struct{}

// NewDropboxAdapter creates a new Dropbox adapter.
func NewDropboxAdapter() *DropboxAdapter {
	return &DropboxAdapter{}
}

// Provider returns the provider type this adapter serves.
func (a *DropboxAdapter) Provider() domain.ProviderType {
	return domain.ProviderDropbox
}

// Deliver uploads the document. Re-delivering the same path overwrites
// instead of duplicating.
func (a *DropboxAdapter) Deliver(ctx context.Context, req driven.DeliveryRequest) (*driven.DeliveryResult, error) {
	config, err := a.config(req.Target)
	if err != nil {
		return nil, err
	}
	client := files.New(config)

	remotePath := "/" + req.Filename
	if req.Path != "" {
		remotePath = "/" + req.Path + "/" + req.Filename
	}

	arg := files.NewUploadArg(remotePath)
	arg.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: "overwrite"}}
	meta, err := client.Upload(arg, req.Content)
	if err != nil {
		return nil, classifyDropboxErr(fmt.Errorf("uploading %s: %w", remotePath, err))
	}
	return &driven.DeliveryResult{RemoteRef: meta.Id}, nil
}

// TestConnection verifies the token by reading the linked account.
func (a *DropboxAdapter) TestConnection(_ context.Context, target driven.Target) error {
	config, err := a.config(target)
	if err != nil {
		return err
	}
	if _, err := users.New(config).GetCurrentAccount(); err != nil {
		return classifyDropboxErr(fmt.Errorf("reading account: %w", err))
	}
	return nil
}

func (a *DropboxAdapter) config(target driven.Target) (dropbox.Config, error) {
	if target.Token == nil {
		return dropbox.Config{}, domain.Classified(domain.ErrClassAuthExpired,
			fmt.Errorf("dropbox: %w", domain.ErrAuthRequired))
	}
	return dropbox.Config{Token: target.Token.AccessToken}, nil
}

// classifyDropboxErr maps Dropbox API failures onto the error taxonomy.
// The SDK surfaces API errors by tag string, so classification matches
// on the documented tags.
func classifyDropboxErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "invalid_access_token"),
		strings.Contains(msg, "expired_access_token"),
		strings.Contains(msg, "missing_scope"):
		return domain.Classified(domain.ErrClassAuthExpired, err)
	case strings.Contains(msg, "too_many_requests"),
		strings.Contains(msg, "too_many_write_operations"),
		strings.Contains(msg, "internal_error"):
		return domain.Classified(domain.ErrClassTransient, err)
	case strings.Contains(msg, "insufficient_space"),
		strings.Contains(msg, "malformed_path"),
		strings.Contains(msg, "disallowed_name"):
		return domain.Classified(domain.ErrClassPermanent, err)
	default:
		return domain.Classified(classifyNetErr(err), err)
	}
}
