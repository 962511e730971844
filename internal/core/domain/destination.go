package domain

import (
	"fmt"
	"strings"
	"time"
)

const unknownDescription = "Unknown"

// ProviderType identifies a destination provider. The set is closed:
// adapters are registered in a fixed table, one per provider type.
type ProviderType string

// Supported destination providers.
const (
	// ProviderGoogleDrive delivers into a Google Drive folder (cloud drive).
	ProviderGoogleDrive ProviderType = "googledrive"

	// ProviderDropbox delivers into a Dropbox folder (cloud drive).
	ProviderDropbox ProviderType = "dropbox"

	// ProviderS3 delivers into an S3-compatible object store.
	ProviderS3 ProviderType = "s3"

	// ProviderWebDAV delivers to a WebDAV share (Nextcloud and friends).
	ProviderWebDAV ProviderType = "webdav"

	// ProviderSFTP delivers over SFTP.
	ProviderSFTP ProviderType = "sftp"

	// ProviderPaperless delivers into a self-hosted DMS consume endpoint.
	ProviderPaperless ProviderType = "paperless"

	// ProviderMail forwards the artifact as an email attachment.
	ProviderMail ProviderType = "mail"
)

// IsValid returns true if the provider type is recognised.
func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderGoogleDrive, ProviderDropbox, ProviderS3, ProviderWebDAV,
		ProviderSFTP, ProviderPaperless, ProviderMail:
		return true
	default:
		return false
	}
}

// RequiresOAuth returns true if this provider authenticates via OAuth
// and therefore owns a CredentialToken lifecycle.
func (p ProviderType) RequiresOAuth() bool {
	return p == ProviderGoogleDrive || p == ProviderDropbox
}

// String returns the string representation.
func (p ProviderType) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p ProviderType) Description() string {
	switch p {
	case ProviderGoogleDrive:
		return "Google Drive (cloud drive)"
	case ProviderDropbox:
		return "Dropbox (cloud drive)"
	case ProviderS3:
		return "S3-compatible object store"
	case ProviderWebDAV:
		return "WebDAV share"
	case ProviderSFTP:
		return "SFTP server"
	case ProviderPaperless:
		return "Paperless-style DMS"
	case ProviderMail:
		return "Email forward"
	default:
		return unknownDescription
	}
}

// AllProviderTypes returns the closed set of supported providers.
func AllProviderTypes() []ProviderType {
	return []ProviderType{
		ProviderGoogleDrive,
		ProviderDropbox,
		ProviderS3,
		ProviderWebDAV,
		ProviderSFTP,
		ProviderPaperless,
		ProviderMail,
	}
}

// DestinationConfig represents one configured delivery target.
// Each destination owns its own credentials and delivery history.
type DestinationConfig struct {
	// ID is the unique identifier (UUID).
	ID string

	// Name is the human-readable name for this destination.
	Name string

	// Provider identifies which adapter delivers to this destination.
	Provider ProviderType

	// Enabled controls whether the dispatcher fans out to this
	// destination. Disabling never deletes prior delivery records.
	Enabled bool

	// PathTemplate is the target path pattern, rendered per document.
	// Supported placeholders: {yyyy}, {mm}, {dd}, {title}, {name}.
	PathTemplate string

	// Settings contains provider-specific configuration (bucket name,
	// host, folder id, ...). Never raw secrets: sensitive values live in
	// the settings store or the credential store and are referenced here
	// by key.
	Settings map[string]string

	// CredentialID references this destination's CredentialToken for
	// OAuth providers. Empty for providers configured via settings keys.
	CredentialID string

	// CreatedAt is when the destination was created.
	CreatedAt time.Time

	// UpdatedAt is when the destination was last updated.
	UpdatedAt time.Time
}

// Setting returns a provider setting value, or empty string.
func (d *DestinationConfig) Setting(key string) string {
	if d.Settings == nil {
		return ""
	}
	return d.Settings[key]
}

// RenderPath expands the destination's path template for a document.
// The {title} placeholder prefers extracted metadata and falls back to
// the delivered filename without extension; {name} is the delivered
// filename. The result always uses forward slashes and never escapes
// upward (".." segments are dropped).
func (d *DestinationConfig) RenderPath(doc *Document, now time.Time) string {
	tmpl := d.PathTemplate
	if tmpl == "" {
		tmpl = "{yyyy}/{mm}/{name}"
	}

	title := strings.TrimSuffix(doc.DeliveredName(), ".pdf")
	date := now
	if doc.Metadata != nil {
		if doc.Metadata.Title != "" {
			title = doc.Metadata.Title
		}
		if !doc.Metadata.Date.IsZero() {
			date = doc.Metadata.Date
		}
	}

	r := strings.NewReplacer(
		"{yyyy}", fmt.Sprintf("%04d", date.Year()),
		"{mm}", fmt.Sprintf("%02d", int(date.Month())),
		"{dd}", fmt.Sprintf("%02d", date.Day()),
		"{title}", sanitizePathSegment(title),
		"{name}", sanitizePathSegment(doc.DeliveredName()),
	)
	rendered := r.Replace(tmpl)

	// Drop empty and parent segments so templates cannot escape the
	// destination root.
	parts := strings.Split(rendered, "/")
	clean := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		clean = append(clean, p)
	}
	return strings.Join(clean, "/")
}

// sanitizePathSegment strips characters that are path separators on
// common targets from a single rendered segment.
func sanitizePathSegment(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	return strings.TrimSpace(s)
}
