package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown provider or content type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrPayloadTooLarge indicates an upload exceeding the configured
	// maximum size. No Document is created.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrDocumentCancelled indicates the document was cancelled and the
	// current stage short-circuited.
	ErrDocumentCancelled = errors.New("document cancelled")

	// Credential errors.

	// ErrAuthRequired indicates the destination requires authorisation
	// but none is configured.
	ErrAuthRequired = errors.New("authorization required")

	// ErrAuthExpired indicates the stored credential expired and refresh
	// failed or was not possible.
	ErrAuthExpired = errors.New("authorization expired")

	// ErrTokenRefreshFailed indicates the token refresh operation failed.
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// ErrAuthStateMismatch indicates an OAuth callback carried an
	// unknown or expired correlation state.
	ErrAuthStateMismatch = errors.New("authorization state mismatch")
)

// ErrorClass is the failure taxonomy shared by every stage and every
// destination adapter. It decides retry behaviour:
//
//   - validation: bad input, fatal, user-correctable, never retried
//   - transient: network/5xx/timeout, retried with bounded backoff
//   - auth_expired: provider rejected the credential, routed to re-auth
//   - permanent: quota/path/unsupported content, terminal
//   - internal: unexpected programmer error, terminal, logged loudly
type ErrorClass string

// Error classes.
const (
	ErrClassValidation  ErrorClass = "validation"
	ErrClassTransient   ErrorClass = "transient"
	ErrClassAuthExpired ErrorClass = "auth_expired"
	ErrClassPermanent   ErrorClass = "permanent"
	ErrClassInternal    ErrorClass = "internal"
)

// IsValid returns true if the class is recognised.
func (c ErrorClass) IsValid() bool {
	switch c {
	case ErrClassValidation, ErrClassTransient, ErrClassAuthExpired,
		ErrClassPermanent, ErrClassInternal:
		return true
	default:
		return false
	}
}

// Retryable returns true if failures of this class are retried
// automatically.
func (c ErrorClass) Retryable() bool {
	return c == ErrClassTransient
}

// String returns the string representation.
func (c ErrorClass) String() string {
	return string(c)
}

// ClassifiedError wraps an error with its taxonomy class so that the
// dispatcher and the orchestrator can route it without string matching.
type ClassifiedError struct {
	// Class is the failure classification.
	Class ErrorClass
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Classified wraps err with the given class. A nil err returns nil.
func Classified(class ErrorClass, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Err: err}
}

// Classify returns the class of err. Unclassified errors are treated as
// internal: unexpected failures must never be silently retried.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	if errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrAuthRequired) {
		return ErrClassAuthExpired
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrPayloadTooLarge) ||
		errors.Is(err, ErrUnsupportedType) {
		return ErrClassValidation
	}
	return ErrClassInternal
}
