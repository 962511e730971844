package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipher_RoundTrip(t *testing.T) {
	c := New([]byte("correct horse battery staple"), []byte("docrelay-salt"))

	sealed, err := c.Encrypt([]byte(`{"access_token":"ya29.secret"}`))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "ya29")

	plaintext, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"access_token":"ya29.secret"}`, string(plaintext))
}

func TestCipher_NonceVariesPerCall(t *testing.T) {
	c := New([]byte("passphrase"), []byte("salt"))

	a, err := c.Encrypt([]byte("same input"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same input"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestCipher_WrongKeyFails(t *testing.T) {
	c1 := New([]byte("passphrase one"), []byte("salt"))
	c2 := New([]byte("passphrase two"), []byte("salt"))

	sealed, err := c1.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = c2.Decrypt(sealed)
	assert.Error(t, err)
}

func TestCipher_TamperedCiphertextFails(t *testing.T) {
	c := New([]byte("passphrase"), []byte("salt"))

	sealed, err := c.Encrypt([]byte("secret"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = c.Decrypt(sealed)
	assert.Error(t, err)
}

func TestCipher_TruncatedCiphertextFails(t *testing.T) {
	c := New([]byte("passphrase"), []byte("salt"))

	_, err := c.Decrypt([]byte("short"))
	assert.Error(t, err)
}

func TestNewWithKey_RejectsBadLength(t *testing.T) {
	_, err := NewWithKey([]byte("too short"))
	assert.Error(t, err)

	_, err = NewWithKey(make([]byte, 32))
	assert.NoError(t, err)
}
