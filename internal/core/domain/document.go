package domain

import (
	"path"
	"strings"
	"time"
)

// DocumentStatus tracks a document's position in the pipeline lifecycle.
type DocumentStatus string

// Document lifecycle states.
const (
	// StatusReceived means the document was ingested and awaits conversion.
	StatusReceived DocumentStatus = "received"

	// StatusConverting means the conversion stage is in progress.
	StatusConverting DocumentStatus = "converting"

	// StatusExtracting means the extraction stage is in progress.
	StatusExtracting DocumentStatus = "extracting"

	// StatusDelivering means the dispatcher has started fan-out.
	StatusDelivering DocumentStatus = "delivering"

	// StatusPartiallyDelivered means some destinations succeeded and some did not.
	StatusPartiallyDelivered DocumentStatus = "partially_delivered"

	// StatusDelivered means every enabled destination succeeded.
	StatusDelivered DocumentStatus = "delivered"

	// StatusFailed means a terminal pipeline failure (conversion exhausted).
	// Delivery failures never set this state; the document stays visible as
	// partially delivered instead.
	StatusFailed DocumentStatus = "failed"

	// StatusCancelled means an operator cancelled the document between stages.
	StatusCancelled DocumentStatus = "cancelled"
)

// IsValid returns true if the status is recognised.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case StatusReceived, StatusConverting, StatusExtracting, StatusDelivering,
		StatusPartiallyDelivered, StatusDelivered, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further stage will run for this status.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusCancelled
}

// String returns the string representation.
func (s DocumentStatus) String() string {
	return string(s)
}

// Failure reasons recorded on a failed Document.
const (
	// FailureConversion means the renderer exhausted its retries.
	// Terminal: the document must be re-uploaded.
	FailureConversion = "conversion_failed"
)

// Document represents one ingested document and its pipeline state.
// It is created at ingestion and mutated only by the stage currently
// holding it. It is never deleted while a delivery is pending.
type Document struct {
	// ID is the unique identifier (UUID), assigned at ingestion.
	ID string

	// OriginalName is the display name claimed at upload time.
	// It is set exactly once at ingestion and never changes afterwards;
	// in particular it is never derived from a storage key.
	OriginalName string

	// SourceKey is the content-addressed storage key of the raw upload.
	// Storage keys are derived from the content hash, never from
	// attacker-controlled names.
	SourceKey string

	// CanonicalKey is the storage key of the canonical PDF artifact.
	// Equals SourceKey when the upload was already a PDF.
	// Empty until the conversion stage completes.
	CanonicalKey string

	// MimeType is the sniffed content type of the raw upload.
	MimeType string

	// Size is the raw upload size in bytes.
	Size int64

	// ContentHash is the hex SHA-256 of the raw upload.
	ContentHash string

	// Status is the current lifecycle state.
	Status DocumentStatus

	// FailureReason is set when Status is failed (e.g. conversion_failed).
	FailureReason string

	// PageCount is the canonical PDF page count, recorded after conversion.
	PageCount int

	// Metadata holds fields produced by the extraction stage. Nil until
	// extraction ran; may stay nil when extraction failed (extraction is
	// best-effort and never blocks delivery).
	Metadata *ExtractedMetadata

	// ExtractionError records a non-fatal extraction failure for
	// observability. It does not affect deliverable status.
	ExtractionError string

	// CreatedAt is when the document was ingested.
	CreatedAt time.Time

	// UpdatedAt is when the document was last modified by a stage.
	UpdatedAt time.Time
}

// ExtractedMetadata holds the structured fields produced by the
// extraction stage. All fields are best-effort.
type ExtractedMetadata struct {
	// Title is the document title suggested by the metadata service.
	Title string `json:"title,omitempty"`

	// Date is the document date (invoice date, letter date, ...).
	Date time.Time `json:"date,omitempty"`

	// Classification is a coarse document class (invoice, contract, ...).
	Classification string `json:"classification,omitempty"`

	// Text is the full text recovered by OCR.
	Text string `json:"text,omitempty"`
}

// MimeTypePDF is the canonical artifact content type.
const MimeTypePDF = "application/pdf"

// IsCanonical returns true if the raw upload is already a PDF and the
// conversion stage is a passthrough.
func (d *Document) IsCanonical() bool {
	return d.MimeType == MimeTypePDF
}

// DeliveredName returns the user-facing filename for the canonical
// artifact: the original display name with its extension normalised to
// .pdf. The original name itself is never modified and the result is
// never used as a storage key.
func (d *Document) DeliveredName() string {
	name := d.OriginalName
	if ext := path.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	return name + ".pdf"
}
