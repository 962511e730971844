package driven

// SecretCipher encrypts credential material before it reaches the
// database and decrypts it on the way out.
type SecretCipher interface {
	// Encrypt seals the plaintext.
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt opens a previously sealed ciphertext.
	Decrypt(ciphertext []byte) ([]byte, error)
}
