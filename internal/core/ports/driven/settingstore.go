package driven

import (
	"context"
)

// SettingStore persists database-layer settings. Values here sit below
// the runtime override layer and above environment variables in the
// resolution chain.
type SettingStore interface {
	// Set stores a setting value. Creates if new, updates if exists.
	Set(ctx context.Context, key, value string) error

	// Get retrieves a setting value. The second return is false when
	// the key has no database value.
	Get(ctx context.Context, key string) (string, bool, error)

	// Unset removes a setting value so resolution falls through to
	// the next layer.
	Unset(ctx context.Context, key string) error

	// All returns every stored key/value pair.
	All(ctx context.Context) (map[string]string, error)
}

// OverrideStore exposes the runtime override layer, the highest
// precedence source in the resolution chain.
type OverrideStore interface {
	// Get retrieves an override value. The second return is false
	// when the key has no override.
	Get(key string) (string, bool)

	// All returns every override key/value pair.
	All() map[string]string
}
