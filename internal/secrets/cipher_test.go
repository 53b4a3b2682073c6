package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	c := NewCipher("deployment-key")

	secrets := []string{"", "s", "a-much-longer-client-secret-value-0123456789"}
	for _, s := range secrets {
		ct, err := c.Encrypt([]byte(s))
		require.NoError(t, err)
		require.NotEqual(t, []byte(s), ct)

		pt, err := c.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, s, string(pt))
	}
}

func TestCipherNonDeterministicNonce(t *testing.T) {
	c := NewCipher("deployment-key")

	a, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestCipherWrongKeyFails(t *testing.T) {
	ct, err := NewCipher("key-one").Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = NewCipher("key-two").Decrypt(ct)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestCipherRejectsBadFraming(t *testing.T) {
	c := NewCipher("deployment-key")

	_, err := c.Decrypt([]byte{0x02, 1, 2, 3})
	assert.ErrorIs(t, err, ErrBadFrame)

	_, err = c.Decrypt(nil)
	assert.ErrorIs(t, err, ErrBadFrame)
}

func TestCipherNoKey(t *testing.T) {
	c := NewCipher("")

	_, err := c.Encrypt([]byte("x"))
	assert.ErrorIs(t, err, ErrNoKey)
}
