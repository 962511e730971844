package driven

import (
	"context"
	"io"

	"github.com/docrelay/docrelay/internal/core/domain"
)

// Target bundles the resolved destination configuration with the
// credential material an adapter needs to reach it.
type Target struct {
	// Destination is the destination configuration.
	Destination domain.DestinationConfig

	// Token is the OAuth token for providers that require one,
	// nil otherwise.
	Token *domain.CredentialToken

	// Secrets holds resolved sensitive settings (passwords, API
	// tokens) keyed by setting key.
	Secrets map[string]string
}

// DeliveryRequest carries everything an adapter needs for one upload.
type DeliveryRequest struct {
	// Target is the destination and its credentials.
	Target Target

	// Document is the document being delivered.
	Document domain.Document

	// Path is the rendered remote directory path, forward slashes,
	// no leading slash.
	Path string

	// Filename is the delivered file name.
	Filename string

	// Content is the canonical PDF stream.
	Content io.Reader

	// Size is the content length in bytes.
	Size int64
}

// DeliveryResult is the outcome of a successful delivery.
type DeliveryResult struct {
	// RemoteRef identifies the created remote object: a file ID,
	// object key or remote path, depending on the provider.
	RemoteRef string
}

// DestinationAdapter delivers documents to one provider type. Errors
// are classified: adapters wrap failures with domain.Classified so the
// dispatcher can tell retryable from terminal from auth failures.
type DestinationAdapter interface {
	// Provider returns the provider type this adapter serves.
	Provider() domain.ProviderType

	// Deliver uploads the document, creating intermediate folders as
	// needed. Delivering the same request twice must not duplicate
	// content where the provider allows overwrite by path.
	Deliver(ctx context.Context, req DeliveryRequest) (*DeliveryResult, error)

	// TestConnection verifies the destination is reachable with the
	// given credentials without writing anything permanent.
	TestConnection(ctx context.Context, target Target) error
}

// AdapterRegistry resolves the adapter for a provider type.
type AdapterRegistry interface {
	// Adapter returns the adapter for a provider. Returns
	// domain.ErrUnsupportedType for providers outside the closed set.
	Adapter(provider domain.ProviderType) (DestinationAdapter, error)
}
