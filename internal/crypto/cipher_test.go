package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCipher(t *testing.T) {
	t.Run("nil key derives dev key", func(t *testing.T) {
		c, err := NewCipher(nil)
		require.NoError(t, err)
		assert.NotNil(t, c)
	})

	t.Run("explicit 32 byte key", func(t *testing.T) {
		c, err := NewCipher(make([]byte, 32))
		require.NoError(t, err)
		assert.NotNil(t, c)
	})

	t.Run("wrong key length", func(t *testing.T) {
		c, err := NewCipher(make([]byte, 16))
		assert.Nil(t, c)
		assert.ErrorContains(t, err, "message key must be 32 bytes")
	})
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(nil)
	require.NoError(t, err)

	tcases := []string{
		"hi",
		"",
		"a longer message with spaces and punctuation, naturally.",
		"non-ascii: héllo wörld του κόσμου",
	}

	for _, plaintext := range tcases {
		ciphertext, iv, tag, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		assert.Len(t, iv, 12)
		assert.Len(t, tag, 16)

		got, err := c.Decrypt(ciphertext, iv, tag)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestCipherIVFreshness(t *testing.T) {
	c, err := NewCipher(nil)
	require.NoError(t, err)

	ct1, iv1, _, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	ct2, iv2, _, err := c.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.False(t, bytes.Equal(iv1, iv2), "expected a fresh iv per encryption")
	assert.False(t, bytes.Equal(ct1, ct2), "expected different ciphertext for the same plaintext")
}

func TestCipherDecryptFailsClosed(t *testing.T) {
	c, err := NewCipher(nil)
	require.NoError(t, err)

	ciphertext, iv, tag, err := c.Encrypt("tamper me")
	require.NoError(t, err)

	t.Run("tampered ciphertext", func(t *testing.T) {
		bad := append([]byte{}, ciphertext...)
		bad[0] ^= 0xff
		_, err := c.Decrypt(bad, iv, tag)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("tampered tag", func(t *testing.T) {
		badTag := append([]byte{}, tag...)
		badTag[0] ^= 0xff
		_, err := c.Decrypt(ciphertext, iv, badTag)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("malformed iv", func(t *testing.T) {
		_, err := c.Decrypt(ciphertext, []byte{1, 2, 3}, tag)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewCipher(bytes.Repeat([]byte{7}, 32))
		require.NoError(t, err)
		_, err = other.Decrypt(ciphertext, iv, tag)
		assert.ErrorIs(t, err, ErrDecrypt)
	})
}

func TestDeriveDevKeyDeterministic(t *testing.T) {
	assert.Equal(t, deriveDevKey(), deriveDevKey())
}
