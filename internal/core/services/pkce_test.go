package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChallengeS256 tests the challenge derivation against the worked
// example in RFC 7636 appendix B.
func TestChallengeS256(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", challengeS256(verifier))
}

// TestNewCodeVerifier tests length and uniqueness of fresh verifiers.
func TestNewCodeVerifier(t *testing.T) {
	first, err := newCodeVerifier()
	require.NoError(t, err)
	second, err := newCodeVerifier()
	require.NoError(t, err)

	// RFC 7636 bounds verifiers to 43-128 characters.
	assert.GreaterOrEqual(t, len(first), 43)
	assert.LessOrEqual(t, len(first), 128)
	assert.NotEqual(t, first, second)
}

// TestNewFlowState tests that states are fresh per flow.
func TestNewFlowState(t *testing.T) {
	first, err := newFlowState()
	require.NoError(t, err)
	second, err := newFlowState()
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
