package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrorClass_Retryable tests which classes are retried automatically
func TestErrorClass_Retryable(t *testing.T) {
	assert.True(t, ErrClassTransient.Retryable())

	assert.False(t, ErrClassValidation.Retryable())
	assert.False(t, ErrClassAuthExpired.Retryable())
	assert.False(t, ErrClassPermanent.Retryable())
	assert.False(t, ErrClassInternal.Retryable())
}

// TestClassified_WrapsAndUnwraps tests the classified error wrapper
func TestClassified_WrapsAndUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Classified(ErrClassTransient, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "transient: connection reset", err.Error())
	assert.Equal(t, ErrClassTransient, Classify(err))
}

// TestClassified_NilPassthrough tests that wrapping nil yields nil
func TestClassified_NilPassthrough(t *testing.T) {
	assert.NoError(t, Classified(ErrClassTransient, nil))
}

// TestClassify_SentinelMapping tests classification of domain sentinels
func TestClassify_SentinelMapping(t *testing.T) {
	assert.Equal(t, ErrClassAuthExpired, Classify(ErrAuthExpired))
	assert.Equal(t, ErrClassAuthExpired, Classify(ErrAuthRequired))
	assert.Equal(t, ErrClassValidation, Classify(ErrInvalidInput))
	assert.Equal(t, ErrClassValidation, Classify(ErrPayloadTooLarge))
	assert.Equal(t, ErrClassValidation, Classify(ErrUnsupportedType))
}

// TestClassify_WrappedSentinel tests classification through fmt.Errorf chains
func TestClassify_WrappedSentinel(t *testing.T) {
	err := fmt.Errorf("checking upload: %w", ErrPayloadTooLarge)
	assert.Equal(t, ErrClassValidation, Classify(err))
}

// TestClassify_UnknownIsInternal tests the default class for unclassified errors
func TestClassify_UnknownIsInternal(t *testing.T) {
	assert.Equal(t, ErrClassInternal, Classify(errors.New("boom")))
	assert.Equal(t, ErrorClass(""), Classify(nil))
}

// TestClassify_InnermostClassWins tests that rewrapping keeps the class
func TestClassify_InnermostClassWins(t *testing.T) {
	inner := Classified(ErrClassPermanent, errors.New("bucket does not exist"))
	outer := fmt.Errorf("delivering to s3: %w", inner)
	assert.Equal(t, ErrClassPermanent, Classify(outer))
}
