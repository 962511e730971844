package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDeliveryState_IsFinal tests which states the dispatcher leaves alone
func TestDeliveryState_IsFinal(t *testing.T) {
	assert.True(t, DeliverySucceeded.IsFinal())
	assert.True(t, DeliveryFailedTerminal.IsFinal())
	assert.True(t, DeliveryNeedsReauth.IsFinal())

	assert.False(t, DeliveryPending.IsFinal())
	assert.False(t, DeliveryInProgress.IsFinal())
	assert.False(t, DeliveryFailedRetryable.IsFinal())
}

// TestDeliveryState_IsValid tests state validation
func TestDeliveryState_IsValid(t *testing.T) {
	valid := []DeliveryState{
		DeliveryPending, DeliveryInProgress, DeliverySucceeded,
		DeliveryFailedRetryable, DeliveryFailedTerminal, DeliveryNeedsReauth,
	}
	for _, s := range valid {
		assert.True(t, s.IsValid(), "expected %s to be valid", s)
	}
	assert.False(t, DeliveryState("done").IsValid())
}
