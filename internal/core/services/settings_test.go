package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrelay/docrelay/internal/adapters/driven/crypto"
	"github.com/docrelay/docrelay/internal/adapters/driven/storage/memory"
	"github.com/docrelay/docrelay/internal/core/domain"
)

func newSealingService(t *testing.T, store *memory.SettingStore) *SettingsService {
	t.Helper()
	svc := NewSettingsService(nil, store)
	cipher, err := crypto.NewWithKey(bytes32(t))
	require.NoError(t, err)
	svc.UseCipher(cipher)
	return svc
}

func bytes32(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

// fakeOverrides is a map-backed override layer for tests.
type fakeOverrides map[string]string

func (f fakeOverrides) Get(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

func (f fakeOverrides) All() map[string]string {
	return f
}

func TestSettingsService_PrecedenceChain(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSettingStore()
	overrides := fakeOverrides{}
	svc := NewSettingsService(overrides, store)

	key := domain.KeyRendererURL

	// Nothing set anywhere: built-in default wins.
	setting, err := svc.Resolve(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceDefault, setting.Source)
	assert.Equal(t, "http://localhost:3000", setting.Value)

	// Environment beats default.
	t.Setenv("DOCRELAY_CONVERT_RENDERER_URL", "http://env:3000")
	setting, err = svc.Resolve(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceEnvironment, setting.Source)
	assert.Equal(t, "http://env:3000", setting.Value)

	// Database beats environment.
	require.NoError(t, svc.Set(ctx, key, "http://db:3000"))
	setting, err = svc.Resolve(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceDatabase, setting.Source)
	assert.Equal(t, "http://db:3000", setting.Value)

	// Override beats database.
	overrides[key] = "http://override:3000"
	setting, err = svc.Resolve(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceOverride, setting.Source)
	assert.Equal(t, "http://override:3000", setting.Value)
}

func TestSettingsService_UnsetFallsThrough(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSettingStore()
	svc := NewSettingsService(nil, store)

	key := domain.KeyRendererTimeout
	require.NoError(t, svc.Set(ctx, key, "30s"))

	setting, err := svc.Resolve(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceDatabase, setting.Source)

	require.NoError(t, svc.Unset(ctx, key))

	setting, err = svc.Resolve(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceDefault, setting.Source)
	assert.Equal(t, "90s", setting.Value)
}

func TestSettingsService_UnsetSentinel(t *testing.T) {
	ctx := context.Background()
	svc := NewSettingsService(nil, memory.NewSettingStore())

	// No default, nothing configured: explicit sentinel, not an error.
	setting, err := svc.Resolve(ctx, domain.KeyOCRURL)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceUnset, setting.Source)
	assert.Empty(t, setting.Value)
}

func TestSettingsService_SensitiveFlagFollowsSpec(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSettingStore()
	svc := NewSettingsService(nil, store)

	require.NoError(t, svc.Set(ctx, domain.KeyMetadataAPIKey, "sk-abcdefghijklmnop"))

	setting, err := svc.Resolve(ctx, domain.KeyMetadataAPIKey)
	require.NoError(t, err)
	assert.True(t, setting.Sensitive)
	assert.Equal(t, "sk-a****mnop", setting.Redacted())
}

func TestSettingsService_SensitiveValuesSealedAtRest(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSettingStore()
	svc := newSealingService(t, store)

	secret := "hunter2-secret-value-12345"
	require.NoError(t, svc.Set(ctx, domain.KeyS3SecretKey, secret))

	// The raw database row carries ciphertext, never the plaintext.
	raw, ok, err := store.Get(ctx, domain.KeyS3SecretKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, secret, raw)
	assert.NotContains(t, raw, secret)

	// Resolution round-trips back to the plaintext.
	setting, err := svc.Resolve(ctx, domain.KeyS3SecretKey)
	require.NoError(t, err)
	assert.Equal(t, secret, setting.Value)
	assert.Equal(t, domain.SourceDatabase, setting.Source)
	assert.True(t, setting.Sensitive)
}

func TestSettingsService_NonSensitiveValuesStayPlaintext(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSettingStore()
	svc := newSealingService(t, store)

	require.NoError(t, svc.Set(ctx, domain.KeyRendererURL, "http://render:3000"))

	raw, ok, err := store.Get(ctx, domain.KeyRendererURL)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://render:3000", raw)
}

func TestSettingsService_MasterKeyIsBootstrapException(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSettingStore()
	svc := newSealingService(t, store)

	// The master passphrase keys the cipher itself, so it must stay
	// readable before any cipher exists.
	require.NoError(t, svc.Set(ctx, domain.KeySecretsKey, "master-passphrase"))

	raw, ok, err := store.Get(ctx, domain.KeySecretsKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "master-passphrase", raw)
}

func TestSettingsService_UnsealedRowsStillResolve(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSettingStore()

	// Row written before a cipher was configured.
	require.NoError(t, store.Set(ctx, domain.KeyMetadataAPIKey, "sk-legacy-plaintext"))

	svc := newSealingService(t, store)
	setting, err := svc.Resolve(ctx, domain.KeyMetadataAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-legacy-plaintext", setting.Value)
}

func TestSettingsService_ResolveAllCoversRegistry(t *testing.T) {
	ctx := context.Background()
	svc := NewSettingsService(nil, memory.NewSettingStore())

	settings, err := svc.ResolveAll(ctx)
	require.NoError(t, err)
	assert.Len(t, settings, len(domain.SettingSpecs()))

	// Every setting resolved to some source; none errored out.
	for _, setting := range settings {
		assert.NotEmpty(t, setting.Source, "key %s has no source", setting.Key)
	}
}

func TestSettingsService_TypedHelpers(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSettingStore()
	svc := NewSettingsService(nil, store)

	assert.Equal(t, 4, svc.Int(ctx, domain.KeyWorkerCount, 1))
	assert.Equal(t, 2*time.Minute, svc.Duration(ctx, domain.KeyQueueVisibility, time.Second))
	assert.Equal(t, int64(104857600), svc.Int64(ctx, domain.KeyMaxUploadSize, 1))

	require.NoError(t, svc.Set(ctx, domain.KeyWorkerCount, "not a number"))
	assert.Equal(t, 1, svc.Int(ctx, domain.KeyWorkerCount, 1))
}
