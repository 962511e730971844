package domain

// SettingSource tags which precedence layer produced a resolved value.
type SettingSource string

// Resolution sources, in precedence order (highest first).
const (
	// SourceOverride is an explicit runtime override from the config file.
	SourceOverride SettingSource = "override"

	// SourceDatabase is a value persisted through the settings write
	// interface. Writes always land here.
	SourceDatabase SettingSource = "database"

	// SourceEnvironment is a value read from the process environment.
	SourceEnvironment SettingSource = "environment"

	// SourceDefault is the built-in default for a recognised key.
	SourceDefault SettingSource = "default"

	// SourceUnset is the explicit sentinel for a recognised key with no
	// value anywhere in the chain. Resolution is total: a missing
	// optional key yields this sentinel, never an error.
	SourceUnset SettingSource = "unset"
)

// String returns the string representation.
func (s SettingSource) String() string {
	return string(s)
}

// Setting is a resolved configuration value together with the layer
// that produced it.
type Setting struct {
	// Key is the configuration key (dotted, e.g. "ingest.max_size").
	Key string

	// Value is the resolved plaintext value. Empty when Source is unset.
	Value string

	// Source is the precedence layer that produced Value.
	Source SettingSource

	// Sensitive marks values that are encrypted at rest and shown only
	// redacted in diagnostics.
	Sensitive bool
}

// Redacted returns the value masked for diagnostic output: the first
// and last four runes stay visible, the middle is starred. Short values
// are fully masked. Non-sensitive settings are returned unchanged.
func (s Setting) Redacted() string {
	if !s.Sensitive {
		return s.Value
	}
	return RedactSecret(s.Value)
}

// RedactSecret masks a secret for display, keeping the first and last
// four runes when the value is long enough to stay unguessable.
func RedactSecret(v string) string {
	runes := []rune(v)
	if len(runes) == 0 {
		return ""
	}
	if len(runes) <= 12 {
		return "****"
	}
	return string(runes[:4]) + "****" + string(runes[len(runes)-4:])
}

// SettingSpec describes one recognised configuration key: its default
// and whether its value is a secret. The registry of specs makes
// resolution total: every recognised key resolves to a value or the
// unset sentinel, never an error.
type SettingSpec struct {
	// Key is the configuration key.
	Key string

	// Description explains what the key controls.
	Description string

	// Default is the built-in default. Empty means no default (the key
	// resolves to the unset sentinel when absent everywhere).
	Default string

	// Sensitive marks secrets (encrypted at rest, redacted in listings).
	Sensitive bool
}

// Well-known configuration keys.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	KeyDataDir           = "core.data_dir"
	KeyInboxDir          = "ingest.inbox_dir"
	KeyMaxUploadSize     = "ingest.max_size"
	KeyRendererURL       = "convert.renderer_url"
	KeyRendererTimeout   = "convert.renderer_timeout"
	KeyOCRURL            = "extract.ocr_url"
	KeyMetadataURL       = "extract.metadata_url"
	KeyMetadataAPIKey    = "extract.metadata_api_key"
	KeyExtractTimeout    = "extract.timeout"
	KeyDeliverAttempts   = "deliver.max_attempts"
	KeyRetryBaseDelay    = "deliver.retry_base_delay"
	KeyRetryMaxDelay     = "deliver.retry_max_delay"
	KeyWorkerCount       = "queue.workers"
	KeyQueueVisibility   = "queue.visibility_timeout"
	KeySecretsKey        = "secrets.master_key"
	KeySMTPPassword      = "mail.smtp_password"
	KeyS3SecretKey       = "s3.secret_access_key"
	KeyWebDAVPassword    = "webdav.password"
	KeySFTPPassword      = "sftp.password"
	KeyPaperlessToken    = "paperless.api_token"
	KeyOAuthClientID     = "oauth.client_id"
	KeyOAuthClientSecret = "oauth.client_secret"
)

// SettingSpecs returns the registry of recognised keys with their
// documented defaults. Keys not listed here resolve normally through
// the chain but carry no default and are treated as non-sensitive.
func SettingSpecs() []SettingSpec {
	return []SettingSpec{
		{Key: KeyDataDir, Description: "Data directory for blobs and the metadata database"},
		{Key: KeyInboxDir, Description: "Watched inbox directory; empty disables the watcher"},
		{Key: KeyMaxUploadSize, Description: "Maximum upload size in bytes", Default: "104857600"},
		{Key: KeyRendererURL, Description: "PDF renderer endpoint", Default: "http://localhost:3000"},
		{Key: KeyRendererTimeout, Description: "Renderer request timeout", Default: "90s"},
		{Key: KeyOCRURL, Description: "OCR service endpoint"},
		{Key: KeyMetadataURL, Description: "AI metadata service endpoint"},
		{Key: KeyMetadataAPIKey, Description: "AI metadata service API key", Sensitive: true},
		{Key: KeyExtractTimeout, Description: "Per-call extraction timeout", Default: "120s"},
		{Key: KeyDeliverAttempts, Description: "Delivery attempts per destination before terminal failure", Default: "5"},
		{Key: KeyRetryBaseDelay, Description: "Base delay for exponential delivery backoff", Default: "10s"},
		{Key: KeyRetryMaxDelay, Description: "Cap for exponential delivery backoff", Default: "10m"},
		{Key: KeyWorkerCount, Description: "Pipeline worker count", Default: "4"},
		{Key: KeyQueueVisibility, Description: "Task visibility timeout", Default: "2m"},
		{Key: KeySecretsKey, Description: "Master passphrase for encrypting stored secrets", Sensitive: true},
		{Key: KeySMTPPassword, Description: "SMTP password for the mail destination", Sensitive: true},
		{Key: KeyS3SecretKey, Description: "S3 secret access key", Sensitive: true},
		{Key: KeyWebDAVPassword, Description: "WebDAV password", Sensitive: true},
		{Key: KeySFTPPassword, Description: "SFTP password", Sensitive: true},
		{Key: KeyPaperlessToken, Description: "DMS API token", Sensitive: true},
		{Key: KeyOAuthClientID, Description: "OAuth client id shared by cloud-drive providers"},
		{Key: KeyOAuthClientSecret, Description: "OAuth client secret", Sensitive: true},
	}
}

// SpecFor returns the spec for a key, or a zero-default spec for
// unrecognised keys.
func SpecFor(key string) SettingSpec {
	for _, spec := range SettingSpecs() {
		if spec.Key == key {
			return spec
		}
	}
	return SettingSpec{Key: key}
}
