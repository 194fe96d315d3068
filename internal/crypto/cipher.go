package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize = 32
	ivSize  = 12
	tagSize = 16
)

// ErrDecrypt is returned for any decryption failure, including tag
// mismatch and malformed input. Callers treat the content as
// unavailable rather than failing the read path.
var ErrDecrypt = errors.New("message decryption failed")

// Cipher encrypts and decrypts message bodies with AES-256-GCM under a
// single server-held key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 32 byte key. If key is nil, a
// deterministic development key is derived instead; that mode is not
// suitable for production.
func NewCipher(key []byte) (*Cipher, error) {
	if key == nil {
		key = deriveDevKey()
	}

	if len(key) != keySize {
		return nil, fmt.Errorf("message key must be %d bytes, got %d", keySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// deriveDevKey expands a fixed passphrase into a 32 byte key so that
// unconfigured deployments still round-trip their own data.
func deriveDevKey() []byte {
	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, []byte("dev_key"), nil, []byte("securechat message key"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		panic("hkdf: " + err.Error())
	}
	return key
}

// Encrypt seals plaintext with a fresh random IV. Two encryptions of
// the same plaintext yield different ciphertext.
func (c *Cipher) Encrypt(plaintext string) (ciphertext, iv, authTag []byte, err error) {
	iv = make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("generate iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)

	// GCM appends the tag to the ciphertext; store them separately.
	ciphertext = sealed[:len(sealed)-tagSize]
	authTag = sealed[len(sealed)-tagSize:]

	return ciphertext, iv, authTag, nil
}

// Decrypt opens a ciphertext/iv/tag triple. It fails closed: any
// tampering or malformed input returns ErrDecrypt.
func (c *Cipher) Decrypt(ciphertext, iv, authTag []byte) (string, error) {
	if len(iv) != ivSize || len(authTag) != tagSize {
		return "", ErrDecrypt
	}

	sealed := make([]byte, 0, len(ciphertext)+len(authTag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}

	return string(plaintext), nil
}
