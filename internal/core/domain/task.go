package domain

import "fmt"

// Stage names the fixed pipeline stages. Topology is fixed:
// convert → extract → dispatch → deliver (one per destination).
type Stage string

// Pipeline stages.
const (
	// StageConvert normalises the upload to the canonical PDF.
	StageConvert Stage = "convert"

	// StageExtract runs OCR and AI metadata extraction.
	StageExtract Stage = "extract"

	// StageDispatch fans the document out: one deliver task per
	// enabled destination.
	StageDispatch Stage = "dispatch"

	// StageDeliver uploads the canonical artifact to one destination.
	StageDeliver Stage = "deliver"
)

// IsValid returns true if the stage is recognised.
func (s Stage) IsValid() bool {
	switch s {
	case StageConvert, StageExtract, StageDispatch, StageDeliver:
		return true
	default:
		return false
	}
}

// Next returns the stage enqueued after this one completes, or empty
// for dispatch and deliver (dispatch enqueues deliver tasks itself).
func (s Stage) Next() Stage {
	switch s {
	case StageConvert:
		return StageExtract
	case StageExtract:
		return StageDispatch
	default:
		return ""
	}
}

// String returns the string representation.
func (s Stage) String() string {
	return string(s)
}

// Task is one queued stage transition. Tasks are delivered at least
// once: a crashed worker's claim reappears after the visibility
// timeout, so every handler checks current Document state before
// mutating it.
type Task struct {
	// DocumentID identifies the document being advanced.
	DocumentID string `json:"document_id"`

	// Stage is the stage to execute.
	Stage Stage `json:"stage_name"`

	// DestinationID is set for deliver tasks only.
	DestinationID string `json:"destination_id,omitempty"`

	// Attempt is the delivery count for this task, starting at 1.
	Attempt int `json:"attempt_number"`
}

// QueueID returns the stable queue identity for the task. One task per
// pending (document, stage) transition, and per destination for
// deliver, makes re-enqueueing idempotent.
func (t Task) QueueID() string {
	if t.Stage == StageDeliver {
		return fmt.Sprintf("%s:%s:%s", t.DocumentID, t.Stage, t.DestinationID)
	}
	return fmt.Sprintf("%s:%s", t.DocumentID, t.Stage)
}
