// Package crypto seals credential material with AES-256-GCM. The key is
// derived from the operator's master passphrase with Argon2id, so the
// database alone is not enough to recover stored tokens.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

const (
	nonceSize = 12
	keySize   = 32
)

// Cipher implements driven.SecretCipher with AES-256-GCM. The nonce is
// prepended to each ciphertext so a sealed value is self-contained.
type Cipher struct {
	key []byte
}

var _ driven.SecretCipher = (*Cipher)(nil)

// New derives an AES-256 key from the passphrase and salt with Argon2id
// and returns a ready cipher.
func New(passphrase, salt []byte) *Cipher {
	return &Cipher{key: argon2.IDKey(passphrase, salt, 1, 64*1024, 4, keySize)}
}

// NewWithKey wraps a pre-derived 32-byte key. Useful for tests.
func NewWithKey(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keySize, len(key))
	}
	return &Cipher{key: key}, nil
}

// Encrypt seals the plaintext. The returned slice is nonce || ciphertext.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short: %d bytes", len(sealed))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	plaintext, err := aesgcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("opening ciphertext: %w", err)
	}
	return plaintext, nil
}
