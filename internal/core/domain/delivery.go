package domain

import "time"

// DeliveryState tracks one (document, destination) delivery.
type DeliveryState string

// Delivery attempt states.
const (
	// DeliveryPending means the attempt is queued but not started.
	DeliveryPending DeliveryState = "pending"

	// DeliveryInProgress means an upload is running right now. At most
	// one attempt per (document, destination) pair may be in this state;
	// the dispatcher enforces it with a per-pair execution lock.
	DeliveryInProgress DeliveryState = "in_progress"

	// DeliverySucceeded means the artifact reached the destination.
	// Re-running a succeeded pair is a no-op returning the stored
	// remote reference.
	DeliverySucceeded DeliveryState = "succeeded"

	// DeliveryFailedRetryable means a transient failure that will be
	// retried with backoff until the attempt bound is reached.
	DeliveryFailedRetryable DeliveryState = "failed_retryable"

	// DeliveryFailedTerminal means a permanent failure or an exhausted
	// retry budget. Requires operator attention.
	DeliveryFailedTerminal DeliveryState = "failed_terminal"

	// DeliveryNeedsReauth means the provider rejected the stored
	// credential. Automatic retry is suspended until an operator
	// re-authorises the destination.
	DeliveryNeedsReauth DeliveryState = "needs_reauth"
)

// IsValid returns true if the state is recognised.
func (s DeliveryState) IsValid() bool {
	switch s {
	case DeliveryPending, DeliveryInProgress, DeliverySucceeded,
		DeliveryFailedRetryable, DeliveryFailedTerminal, DeliveryNeedsReauth:
		return true
	default:
		return false
	}
}

// IsFinal returns true if the dispatcher will not touch this attempt
// again without operator action.
func (s DeliveryState) IsFinal() bool {
	return s == DeliverySucceeded || s == DeliveryFailedTerminal || s == DeliveryNeedsReauth
}

// String returns the string representation.
func (s DeliveryState) String() string {
	return string(s)
}

// DeliveryAttempt records delivery state for one (document, destination)
// pair. The pair is the idempotency key: re-dispatching an already
// succeeded pair returns RemoteRef without re-uploading.
type DeliveryAttempt struct {
	// DocumentID links to the Document being delivered.
	DocumentID string

	// DestinationID links to the DestinationConfig.
	DestinationID string

	// State is the current delivery state.
	State DeliveryState

	// Attempts counts how many uploads were started for this pair.
	Attempts int

	// LastErrorClass is the classification of the most recent failure
	// (transient, auth_expired, permanent, internal). Empty on success.
	LastErrorClass ErrorClass

	// LastError is the most recent failure message. Empty on success.
	LastError string

	// RemoteRef is the provider-assigned reference (file id, object key,
	// task id) recorded on success.
	RemoteRef string

	// NextRetryAt is when a retryable attempt becomes due again.
	NextRetryAt time.Time

	// UpdatedAt is when the attempt last changed state.
	UpdatedAt time.Time
}
