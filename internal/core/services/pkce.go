package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// The authorisation flow carries two random values: the PKCE verifier
// proving the process finishing the flow is the one that started it,
// and the state parameter correlating the provider redirect with the
// stored authorisation request.
const (
	// verifierBytes encodes to 64 characters, inside RFC 7636's 43-128
	// character bound for code verifiers.
	verifierBytes = 48

	stateBytes = 32
)

func randomURLToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading randomness: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// newCodeVerifier returns a fresh PKCE code verifier.
func newCodeVerifier() (string, error) {
	return randomURLToken(verifierBytes)
}

// challengeS256 derives the code challenge sent on the authorisation
// URL. The verifier itself only travels on the token exchange.
func challengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// newFlowState returns the random state tying a provider callback to a
// pending authorisation request.
func newFlowState() (string, error) {
	return randomURLToken(stateBytes)
}
