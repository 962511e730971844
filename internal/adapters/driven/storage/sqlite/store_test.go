package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrelay/docrelay/internal/adapters/driven/crypto"
	"github.com/docrelay/docrelay/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// TestNewStore_Migrates tests that opening a fresh directory creates the
// schema and that reopening the same directory is a no-op.
func TestNewStore_Migrates(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	assert.Contains(t, store.Path(), "metadata.db")
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, reopened.Close())
}

// TestDocumentStore_RoundTrip tests saving, reading and updating a
// document including the metadata blob.
func TestDocumentStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	doc := &domain.Document{
		ID:           "doc-1",
		OriginalName: "Invoice Jan.docx",
		SourceKey:    "blobs/ab/abcd",
		MimeType:     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Size:         2048,
		ContentHash:  "abcd",
		Status:       domain.StatusReceived,
	}
	require.NoError(t, docs.Save(ctx, doc))

	doc.CanonicalKey = "blobs/ef/efgh"
	doc.PageCount = 3
	doc.Metadata = &domain.ExtractedMetadata{Title: "January Invoice", Classification: "invoice"}
	require.NoError(t, docs.Save(ctx, doc))

	got, err := docs.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Invoice Jan.docx", got.OriginalName)
	assert.Equal(t, "blobs/ef/efgh", got.CanonicalKey)
	assert.Equal(t, 3, got.PageCount)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, "January Invoice", got.Metadata.Title)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, docs.UpdateStatus(ctx, "doc-1", domain.StatusFailed, domain.FailureConversion))
	got, err = docs.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, domain.FailureConversion, got.FailureReason)

	list, err := docs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// TestDocumentStore_NotFound tests the missing-row paths.
func TestDocumentStore_NotFound(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	_, err := docs.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = docs.UpdateStatus(ctx, "nope", domain.StatusCancelled, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestDestinationStore_RoundTrip tests CRUD and the enabled filter.
func TestDestinationStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	dests := store.DestinationStore()
	ctx := context.Background()

	require.NoError(t, dests.Save(ctx, domain.DestinationConfig{
		ID:           "dest-1",
		Name:         "Archive",
		Provider:     domain.ProviderWebDAV,
		Enabled:      true,
		PathTemplate: "{yyyy}/{mm}",
		Settings:     map[string]string{"url": "https://dav.example.org"},
	}))
	require.NoError(t, dests.Save(ctx, domain.DestinationConfig{
		ID:       "dest-2",
		Name:     "Backup",
		Provider: domain.ProviderSFTP,
		Enabled:  false,
	}))

	got, err := dests.Get(ctx, "dest-1")
	require.NoError(t, err)
	assert.Equal(t, "Archive", got.Name)
	assert.Equal(t, "{yyyy}/{mm}", got.PathTemplate)
	assert.Equal(t, "https://dav.example.org", got.Settings["url"])

	all, err := dests.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabled, err := dests.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "dest-1", enabled[0].ID)

	require.NoError(t, dests.Delete(ctx, "dest-1"))
	_, err = dests.Get(ctx, "dest-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestDeliveryStore_RoundTrip tests per-pair upserts and listing.
func TestDeliveryStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	deliveries := store.DeliveryStore()
	ctx := context.Background()

	attempt := domain.DeliveryAttempt{
		DocumentID:    "doc-1",
		DestinationID: "dest-1",
		State:         domain.DeliveryPending,
	}
	require.NoError(t, deliveries.Save(ctx, attempt))

	attempt.State = domain.DeliveryFailedRetryable
	attempt.Attempts = 2
	attempt.LastErrorClass = domain.ErrClassTransient
	attempt.LastError = "connection refused"
	attempt.NextRetryAt = time.Now().UTC().Add(time.Minute).Truncate(time.Second)
	require.NoError(t, deliveries.Save(ctx, attempt))

	got, err := deliveries.Get(ctx, "doc-1", "dest-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryFailedRetryable, got.State)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, domain.ErrClassTransient, got.LastErrorClass)
	assert.Equal(t, "connection refused", got.LastError)
	assert.False(t, got.NextRetryAt.IsZero())

	byDoc, err := deliveries.ListByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, byDoc, 1)

	byDest, err := deliveries.ListByDestination(ctx, "dest-1")
	require.NoError(t, err)
	assert.Len(t, byDest, 1)

	_, err = deliveries.Get(ctx, "doc-1", "dest-other")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestDeliveryStore_MarkNeedsReauth tests that only non-final attempts
// are flipped.
func TestDeliveryStore_MarkNeedsReauth(t *testing.T) {
	store := newTestStore(t)
	deliveries := store.DeliveryStore()
	ctx := context.Background()

	require.NoError(t, deliveries.Save(ctx, domain.DeliveryAttempt{
		DocumentID: "doc-1", DestinationID: "dest-1", State: domain.DeliveryPending,
	}))
	require.NoError(t, deliveries.Save(ctx, domain.DeliveryAttempt{
		DocumentID: "doc-2", DestinationID: "dest-1",
		State: domain.DeliverySucceeded, RemoteRef: "file-9",
	}))

	require.NoError(t, deliveries.MarkNeedsReauth(ctx, "dest-1"))

	pending, err := deliveries.Get(ctx, "doc-1", "dest-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryNeedsReauth, pending.State)
	assert.Equal(t, domain.ErrClassAuthExpired, pending.LastErrorClass)

	done, err := deliveries.Get(ctx, "doc-2", "dest-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySucceeded, done.State)
	assert.Equal(t, "file-9", done.RemoteRef)
}

// TestSettingStore_RoundTrip tests set, get, all and unset.
func TestSettingStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	settings := store.SettingStore()
	ctx := context.Background()

	_, ok, err := settings.Get(ctx, domain.KeyRendererURL)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, settings.Set(ctx, domain.KeyRendererURL, "http://render:3000"))
	require.NoError(t, settings.Set(ctx, domain.KeyRendererURL, "http://render:4000"))

	value, ok, err := settings.Get(ctx, domain.KeyRendererURL)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://render:4000", value)

	all, err := settings.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{domain.KeyRendererURL: "http://render:4000"}, all)

	require.NoError(t, settings.Unset(ctx, domain.KeyRendererURL))
	_, ok, err = settings.Get(ctx, domain.KeyRendererURL)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestCredentialStore_SealsTokens tests that token payloads round-trip
// through the cipher and never reach disk in plaintext.
func TestCredentialStore_SealsTokens(t *testing.T) {
	store := newTestStore(t)
	cipher := crypto.New([]byte("master-passphrase"), []byte("test-salt"))
	creds := store.CredentialStore(cipher)
	ctx := context.Background()

	token := domain.CredentialToken{
		ID:            "cred-1",
		DestinationID: "dest-1",
		Provider:      domain.ProviderGoogleDrive,
		State:         domain.CredentialValid,
		AccessToken:   "ya29.secret-access",
		RefreshToken:  "1//refresh-secret",
		Expiry:        time.Now().UTC().Add(time.Hour).Truncate(time.Second),
		Scope:         "drive.file",
	}
	require.NoError(t, creds.SaveToken(ctx, token))

	got, err := creds.GetToken(ctx, "dest-1")
	require.NoError(t, err)
	assert.Equal(t, "ya29.secret-access", got.AccessToken)
	assert.Equal(t, "1//refresh-secret", got.RefreshToken)
	assert.Equal(t, "drive.file", got.Scope)
	assert.Equal(t, domain.CredentialValid, got.State)

	var sealed []byte
	err = store.db.QueryRow("SELECT token FROM credentials WHERE destination_id = ?", "dest-1").Scan(&sealed)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "ya29.secret-access")

	require.NoError(t, creds.DeleteToken(ctx, "dest-1"))
	_, err = creds.GetToken(ctx, "dest-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestCredentialStore_AuthRequestSingleUse tests that a correlation
// state completes at most once.
func TestCredentialStore_AuthRequestSingleUse(t *testing.T) {
	store := newTestStore(t)
	cipher := crypto.New([]byte("master-passphrase"), []byte("test-salt"))
	creds := store.CredentialStore(cipher)
	ctx := context.Background()

	require.NoError(t, creds.SaveAuthRequest(ctx, domain.AuthorizationRequest{
		State:         "state-abc",
		DestinationID: "dest-1",
		Provider:      domain.ProviderDropbox,
		CodeVerifier:  "verifier",
		RedirectURI:   "http://127.0.0.1:8484/callback",
	}))

	req, err := creds.TakeAuthRequest(ctx, "state-abc")
	require.NoError(t, err)
	assert.Equal(t, "dest-1", req.DestinationID)
	assert.Equal(t, "verifier", req.CodeVerifier)

	_, err = creds.TakeAuthRequest(ctx, "state-abc")
	assert.ErrorIs(t, err, domain.ErrAuthStateMismatch)
}
