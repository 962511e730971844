package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/docrelay/docrelay/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// jsonNull is the JSON representation of null.
const jsonNull = "null"

// Store is a unified SQLite-based storage that provides access to
// all metadata store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.docrelay/data/metadata.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".docrelay", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "metadata.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// DestinationStore returns a DestinationStore interface backed by this store.
func (s *Store) DestinationStore() driven.DestinationStore {
	return &destinationStore{store: s}
}

// DeliveryStore returns a DeliveryStore interface backed by this store.
func (s *Store) DeliveryStore() driven.DeliveryStore {
	return &deliveryStore{store: s}
}

// SettingStore returns a SettingStore interface backed by this store.
func (s *Store) SettingStore() driven.SettingStore {
	return &settingStore{store: s}
}

// CredentialStore returns a CredentialStore backed by this store. Token
// payloads are sealed with the given cipher before they touch disk.
func (s *Store) CredentialStore(cipher driven.SecretCipher) driven.CredentialStore {
	return &credentialStore{store: s, cipher: cipher}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// Save stores or updates a document.
func (s *documentStore) Save(ctx context.Context, doc *domain.Document) error {
	if doc.ID == "" {
		return domain.ErrInvalidInput
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents
			(id, original_name, source_key, canonical_key, mime_type, size,
			 content_hash, status, failure_reason, page_count, metadata,
			 extraction_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_key = excluded.source_key,
			canonical_key = excluded.canonical_key,
			mime_type = excluded.mime_type,
			size = excluded.size,
			content_hash = excluded.content_hash,
			status = excluded.status,
			failure_reason = excluded.failure_reason,
			page_count = excluded.page_count,
			metadata = excluded.metadata,
			extraction_error = excluded.extraction_error,
			updated_at = excluded.updated_at
	`, doc.ID, doc.OriginalName, doc.SourceKey, nullString(doc.CanonicalKey),
		doc.MimeType, doc.Size, doc.ContentHash, string(doc.Status),
		nullString(doc.FailureReason), doc.PageCount, string(metadataJSON),
		nullString(doc.ExtractionError), doc.CreatedAt, doc.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// Get retrieves a document by ID.
func (s *documentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, original_name, source_key, canonical_key, mime_type, size,
		       content_hash, status, failure_reason, page_count, metadata,
		       extraction_error, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)

	doc, err := scanDocument(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// List returns all documents, newest first.
func (s *documentStore) List(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, original_name, source_key, canonical_key, mime_type, size,
		       content_hash, status, failure_reason, page_count, metadata,
		       extraction_error, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}

// UpdateStatus transitions a document's status and failure reason.
func (s *documentStore) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, reason string) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, failure_reason = ?, updated_at = ?
		WHERE id = ?
	`, string(status), nullString(reason), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanDocument scans a document using the given scan function, which
// works for both *sql.Row and *sql.Rows.
func scanDocument(scan func(dest ...any) error) (*domain.Document, error) {
	var doc domain.Document
	var canonicalKey, failureReason, metadataJSON, extractionError sql.NullString
	var status string
	var createdAt, updatedAt sql.NullTime

	if err := scan(&doc.ID, &doc.OriginalName, &doc.SourceKey, &canonicalKey,
		&doc.MimeType, &doc.Size, &doc.ContentHash, &status, &failureReason,
		&doc.PageCount, &metadataJSON, &extractionError, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.CanonicalKey = canonicalKey.String
	doc.FailureReason = failureReason.String
	doc.ExtractionError = extractionError.String
	doc.Status = domain.DocumentStatus(status)
	if createdAt.Valid {
		doc.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		doc.UpdatedAt = updatedAt.Time
	}

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != jsonNull {
		var meta domain.ExtractedMetadata
		if err := json.Unmarshal([]byte(metadataJSON.String), &meta); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata: %w", err)
		}
		doc.Metadata = &meta
	}

	return &doc, nil
}

// ==================== Destination Store ====================

// destinationStore implements driven.DestinationStore.
type destinationStore struct {
	store *Store
}

var _ driven.DestinationStore = (*destinationStore)(nil)

// Save stores or updates a destination.
func (s *destinationStore) Save(ctx context.Context, dest domain.DestinationConfig) error {
	if dest.ID == "" {
		return domain.ErrInvalidInput
	}

	settingsJSON, err := json.Marshal(dest.Settings)
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}

	now := time.Now().UTC()
	if dest.CreatedAt.IsZero() {
		dest.CreatedAt = now
	}
	dest.UpdatedAt = now

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO destinations
			(id, name, provider, enabled, path_template, settings, credential_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			provider = excluded.provider,
			enabled = excluded.enabled,
			path_template = excluded.path_template,
			settings = excluded.settings,
			credential_id = excluded.credential_id,
			updated_at = excluded.updated_at
	`, dest.ID, dest.Name, string(dest.Provider), boolToInt(dest.Enabled),
		nullString(dest.PathTemplate), string(settingsJSON),
		nullString(dest.CredentialID), dest.CreatedAt, dest.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving destination: %w", err)
	}
	return nil
}

// Get retrieves a destination by ID.
func (s *destinationStore) Get(ctx context.Context, id string) (*domain.DestinationConfig, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, name, provider, enabled, path_template, settings, credential_id, created_at, updated_at
		FROM destinations WHERE id = ?
	`, id)

	dest, err := scanDestination(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return dest, nil
}

// List returns all destinations.
func (s *destinationStore) List(ctx context.Context) ([]domain.DestinationConfig, error) {
	return s.list(ctx, false)
}

// ListEnabled returns destinations included in dispatch fan-out.
func (s *destinationStore) ListEnabled(ctx context.Context) ([]domain.DestinationConfig, error) {
	return s.list(ctx, true)
}

func (s *destinationStore) list(ctx context.Context, enabledOnly bool) ([]domain.DestinationConfig, error) {
	query := `
		SELECT id, name, provider, enabled, path_template, settings, credential_id, created_at, updated_at
		FROM destinations
	`
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY name"

	rows, err := s.store.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying destinations: %w", err)
	}
	defer rows.Close()

	var dests []domain.DestinationConfig //nolint:prealloc // size unknown from query
	for rows.Next() {
		dest, err := scanDestination(rows.Scan)
		if err != nil {
			return nil, err
		}
		dests = append(dests, *dest)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating destinations: %w", err)
	}

	return dests, nil
}

// Delete removes a destination configuration.
func (s *destinationStore) Delete(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM destinations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting destination: %w", err)
	}
	return nil
}

// scanDestination scans a destination using the given scan function.
func scanDestination(scan func(dest ...any) error) (*domain.DestinationConfig, error) {
	var dest domain.DestinationConfig
	var provider string
	var enabled int
	var pathTemplate, settingsJSON, credentialID sql.NullString
	var createdAt, updatedAt sql.NullTime

	if err := scan(&dest.ID, &dest.Name, &provider, &enabled, &pathTemplate,
		&settingsJSON, &credentialID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning destination: %w", err)
	}

	dest.Provider = domain.ProviderType(provider)
	dest.Enabled = enabled != 0
	dest.PathTemplate = pathTemplate.String
	dest.CredentialID = credentialID.String
	if createdAt.Valid {
		dest.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		dest.UpdatedAt = updatedAt.Time
	}

	if settingsJSON.Valid && settingsJSON.String != "" && settingsJSON.String != jsonNull {
		if err := json.Unmarshal([]byte(settingsJSON.String), &dest.Settings); err != nil {
			return nil, fmt.Errorf("unmarshalling settings: %w", err)
		}
	}

	return &dest, nil
}

// ==================== Delivery Store ====================

// deliveryStore implements driven.DeliveryStore.
type deliveryStore struct {
	store *Store
}

var _ driven.DeliveryStore = (*deliveryStore)(nil)

// Save stores or updates a delivery attempt.
func (s *deliveryStore) Save(ctx context.Context, attempt domain.DeliveryAttempt) error {
	if attempt.DocumentID == "" || attempt.DestinationID == "" {
		return domain.ErrInvalidInput
	}

	attempt.UpdatedAt = time.Now().UTC()

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO deliveries
			(document_id, destination_id, state, attempts, last_error_class,
			 last_error, remote_ref, next_retry_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, destination_id) DO UPDATE SET
			state = excluded.state,
			attempts = excluded.attempts,
			last_error_class = excluded.last_error_class,
			last_error = excluded.last_error,
			remote_ref = excluded.remote_ref,
			next_retry_at = excluded.next_retry_at,
			updated_at = excluded.updated_at
	`, attempt.DocumentID, attempt.DestinationID, string(attempt.State),
		attempt.Attempts, nullString(string(attempt.LastErrorClass)),
		nullString(attempt.LastError), nullString(attempt.RemoteRef),
		formatNullableTime(attempt.NextRetryAt), attempt.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving delivery: %w", err)
	}
	return nil
}

// Get retrieves the delivery attempt for one pair.
func (s *deliveryStore) Get(ctx context.Context, documentID, destinationID string) (*domain.DeliveryAttempt, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT document_id, destination_id, state, attempts, last_error_class,
		       last_error, remote_ref, next_retry_at, updated_at
		FROM deliveries WHERE document_id = ? AND destination_id = ?
	`, documentID, destinationID)

	attempt, err := scanDelivery(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return attempt, nil
}

// ListByDocument returns all delivery attempts for a document.
func (s *deliveryStore) ListByDocument(ctx context.Context, documentID string) ([]domain.DeliveryAttempt, error) {
	return s.list(ctx, "document_id", documentID)
}

// ListByDestination returns all delivery attempts for a destination.
func (s *deliveryStore) ListByDestination(ctx context.Context, destinationID string) ([]domain.DeliveryAttempt, error) {
	return s.list(ctx, "destination_id", destinationID)
}

func (s *deliveryStore) list(ctx context.Context, column, value string) ([]domain.DeliveryAttempt, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT document_id, destination_id, state, attempts, last_error_class,
		       last_error, remote_ref, next_retry_at, updated_at
		FROM deliveries WHERE `+column+` = ?
	`, value)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var attempts []domain.DeliveryAttempt //nolint:prealloc // size unknown from query
	for rows.Next() {
		attempt, err := scanDelivery(rows.Scan)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deliveries: %w", err)
	}

	return attempts, nil
}

// MarkNeedsReauth flips every non-final attempt for a destination to
// needs_reauth.
func (s *deliveryStore) MarkNeedsReauth(ctx context.Context, destinationID string) error {
	_, err := s.store.db.ExecContext(ctx, `
		UPDATE deliveries
		SET state = ?, last_error_class = ?, updated_at = ?
		WHERE destination_id = ? AND state IN (?, ?, ?)
	`, string(domain.DeliveryNeedsReauth), string(domain.ErrClassAuthExpired),
		time.Now().UTC(), destinationID,
		string(domain.DeliveryPending), string(domain.DeliveryInProgress),
		string(domain.DeliveryFailedRetryable))
	if err != nil {
		return fmt.Errorf("marking deliveries needs_reauth: %w", err)
	}
	return nil
}

// scanDelivery scans a delivery attempt using the given scan function.
func scanDelivery(scan func(dest ...any) error) (*domain.DeliveryAttempt, error) {
	var attempt domain.DeliveryAttempt
	var state string
	var errorClass, lastError, remoteRef, nextRetryAt sql.NullString
	var updatedAt sql.NullTime

	if err := scan(&attempt.DocumentID, &attempt.DestinationID, &state,
		&attempt.Attempts, &errorClass, &lastError, &remoteRef,
		&nextRetryAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning delivery: %w", err)
	}

	attempt.State = domain.DeliveryState(state)
	attempt.LastErrorClass = domain.ErrorClass(errorClass.String)
	attempt.LastError = lastError.String
	attempt.RemoteRef = remoteRef.String
	attempt.NextRetryAt = parseNullableTime(nextRetryAt)
	if updatedAt.Valid {
		attempt.UpdatedAt = updatedAt.Time
	}

	return &attempt, nil
}

// ==================== Setting Store ====================

// settingStore implements driven.SettingStore.
type settingStore struct {
	store *Store
}

var _ driven.SettingStore = (*settingStore)(nil)

// Set stores or updates a setting value.
func (s *settingStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("saving setting: %w", err)
	}
	return nil
}

// Get retrieves a setting value.
func (s *settingStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.store.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting setting: %w", err)
	}
	return value, true, nil
}

// Unset removes a setting value.
func (s *settingStore) Unset(ctx context.Context, key string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("unsetting setting: %w", err)
	}
	return nil
}

// All returns every stored key/value pair.
func (s *settingStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	all := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		all[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}

	return all, nil
}

// ==================== Helper Functions ====================

// formatNullableTime formats a time as RFC3339, or nil for zero times.
func formatNullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339)
}

// parseNullableTime parses a nullable RFC3339 string to time.Time.
// Returns zero time if the string is empty or invalid.
func parseNullableTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return time.Time{} // Return zero time on parse error
	}
	return t
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// boolToInt converts a bool to 1 (true) or 0 (false).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
