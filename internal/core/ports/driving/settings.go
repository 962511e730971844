package driving

import (
	"context"

	"github.com/docrelay/docrelay/internal/core/domain"
)

// SettingsService resolves configuration through the precedence chain:
// runtime override, then database, then environment, then built-in
// default.
type SettingsService interface {
	// Resolve returns the effective value for a key together with
	// the layer that supplied it.
	Resolve(ctx context.Context, key string) (domain.Setting, error)

	// ResolveAll returns the effective value for every registered key.
	ResolveAll(ctx context.Context) ([]domain.Setting, error)

	// Set writes a value into the database layer.
	Set(ctx context.Context, key, value string) error

	// Unset removes the database-layer value so resolution falls
	// through to environment or default.
	Unset(ctx context.Context, key string) error
}
