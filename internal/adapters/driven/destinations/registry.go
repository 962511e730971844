package destinations

import (
	"fmt"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.AdapterRegistry = (*Registry)(nil)

// Registry holds the fixed adapter table, one adapter per provider in
// the closed set.
type Registry struct {
	adapters map[domain.ProviderType]driven.DestinationAdapter
}

// NewRegistry creates the registry with every supported adapter
// registered.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[domain.ProviderType]driven.DestinationAdapter)}
	for _, adapter := range []driven.DestinationAdapter{
		NewGoogleDriveAdapter(),
		NewDropboxAdapter(),
		NewS3Adapter(),
		NewWebDAVAdapter(),
		NewSFTPAdapter(),
		NewPaperlessAdapter(),
		NewMailAdapter(),
	} {
		r.adapters[adapter.Provider()] = adapter
	}
	return r
}

// Adapter returns the adapter for a provider.
func (r *Registry) Adapter(provider domain.ProviderType) (driven.DestinationAdapter, error) {
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for provider %q", domain.ErrUnsupportedType, provider)
	}
	return adapter, nil
}
