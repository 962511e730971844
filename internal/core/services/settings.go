package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
	"github.com/docrelay/docrelay/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// envPrefix namespaces the environment layer of the resolution chain.
const envPrefix = "DOCRELAY_"

// sealedPrefix marks a database value that was sealed with the secret
// cipher before it was written.
const sealedPrefix = "sealed:"

// SettingsService resolves configuration through the precedence chain:
// override file, then database, then environment, then built-in
// default, then the explicit unset sentinel. Resolution is total and
// never fails for a recognised key.
type SettingsService struct {
	overrides driven.OverrideStore
	store     driven.SettingStore
	cipher    driven.SecretCipher
}

// NewSettingsService creates a new settings service. The override
// store may be nil, in which case the chain starts at the database.
func NewSettingsService(overrides driven.OverrideStore, store driven.SettingStore) *SettingsService {
	return &SettingsService{
		overrides: overrides,
		store:     store,
	}
}

// UseCipher installs the cipher that seals sensitive values before
// they reach the database layer. The cipher itself is keyed from the
// master passphrase setting, so it is attached after bootstrap rather
// than passed to the constructor.
func (s *SettingsService) UseCipher(cipher driven.SecretCipher) {
	s.cipher = cipher
}

// Resolve returns the effective value for a key together with the
// layer that supplied it.
func (s *SettingsService) Resolve(ctx context.Context, key string) (domain.Setting, error) {
	spec := domain.SpecFor(key)
	setting := domain.Setting{Key: key, Sensitive: spec.Sensitive}

	if s.overrides != nil {
		if val, ok := s.overrides.Get(key); ok {
			setting.Value = val
			setting.Source = domain.SourceOverride
			return setting, nil
		}
	}

	val, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return domain.Setting{}, fmt.Errorf("reading setting %s: %w", key, err)
	}
	if ok {
		if val, err = s.unseal(val); err != nil {
			return domain.Setting{}, fmt.Errorf("unsealing setting %s: %w", key, err)
		}
		setting.Value = val
		setting.Source = domain.SourceDatabase
		return setting, nil
	}

	if val, ok := os.LookupEnv(envKey(key)); ok {
		setting.Value = val
		setting.Source = domain.SourceEnvironment
		return setting, nil
	}

	if spec.Default != "" {
		setting.Value = spec.Default
		setting.Source = domain.SourceDefault
		return setting, nil
	}

	setting.Source = domain.SourceUnset
	return setting, nil
}

// ResolveAll returns the effective value for every registered key.
func (s *SettingsService) ResolveAll(ctx context.Context) ([]domain.Setting, error) {
	specs := domain.SettingSpecs()
	settings := make([]domain.Setting, 0, len(specs))
	for _, spec := range specs {
		setting, err := s.Resolve(ctx, spec.Key)
		if err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}
	return settings, nil
}

// Set writes a value into the database layer. Sensitive values are
// sealed with the secret cipher first, so they never reach disk in
// plaintext. The master passphrase itself stays plaintext: it keys the
// cipher, so sealing it with itself would make bootstrap impossible.
func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return domain.ErrInvalidInput
	}
	if s.cipher != nil && key != domain.KeySecretsKey && domain.SpecFor(key).Sensitive {
		sealed, err := s.cipher.Encrypt([]byte(value))
		if err != nil {
			return fmt.Errorf("sealing setting %s: %w", key, err)
		}
		value = sealedPrefix + base64.StdEncoding.EncodeToString(sealed)
	}
	return s.store.Set(ctx, key, value)
}

// Unset removes the database-layer value so resolution falls through.
func (s *SettingsService) Unset(ctx context.Context, key string) error {
	return s.store.Unset(ctx, key)
}

// Value resolves a key and returns just its effective value.
func (s *SettingsService) Value(ctx context.Context, key string) (string, error) {
	setting, err := s.Resolve(ctx, key)
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

// Duration resolves a key as a duration, falling back to def when the
// value is unset or malformed.
func (s *SettingsService) Duration(ctx context.Context, key string, def time.Duration) time.Duration {
	val, err := s.Value(ctx, key)
	if err != nil || val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

// Int resolves a key as an integer, falling back to def when the value
// is unset or malformed.
func (s *SettingsService) Int(ctx context.Context, key string, def int) int {
	val, err := s.Value(ctx, key)
	if err != nil || val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

// Int64 resolves a key as a 64-bit integer, falling back to def when
// the value is unset or malformed.
func (s *SettingsService) Int64(ctx context.Context, key string, def int64) int64 {
	val, err := s.Value(ctx, key)
	if err != nil || val == "" {
		return def
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// unseal reverses the sealing applied by Set. Values without the
// sealed marker pass through untouched, so rows written before a
// cipher was configured stay readable.
func (s *SettingsService) unseal(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if s.cipher == nil {
		return "", fmt.Errorf("value is sealed but no cipher is configured")
	}
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decoding sealed value: %w", err)
	}
	plaintext, err := s.cipher.Decrypt(sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// envKey maps a dotted setting key to its environment variable name:
// convert.renderer_url becomes DOCRELAY_CONVERT_RENDERER_URL.
func envKey(key string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
