// internal/secrets/cipher.go
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
)

// Ciphertext layout: version byte 0x01, then nonce, then GCM output.
const versionGCM = 0x01

var (
	ErrNoKey    = errors.New("secrets: encryption key not configured")
	ErrDecrypt  = errors.New("secrets: decryption failed")
	ErrBadFrame = errors.New("secrets: unrecognized ciphertext framing")
)

// Cipher encrypts client secrets for storage with a deployment-wide key.
type Cipher struct {
	key []byte
}

func NewCipher(key string) *Cipher {
	if key == "" {
		return &Cipher{}
	}
	return &Cipher{key: []byte(key)}
}

func (c *Cipher) gcm() (cipher.AEAD, error) {
	if len(c.key) == 0 {
		return nil, ErrNoKey
	}
	h := sha256.Sum256(c.key)
	block, err := aes.NewCipher(h[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c *Cipher) Encrypt(plain []byte) ([]byte, error) {
	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ct := gcm.Seal(nil, nonce, plain, nil)
	out := make([]byte, 1+len(nonce)+len(ct))
	out[0] = versionGCM
	copy(out[1:1+len(nonce)], nonce)
	copy(out[1+len(nonce):], ct)
	return out, nil
}

func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}
	if len(data) < 1+gcm.NonceSize() || data[0] != versionGCM {
		return nil, ErrBadFrame
	}
	nonce := data[1 : 1+gcm.NonceSize()]
	plain, err := gcm.Open(nil, nonce, data[1+gcm.NonceSize():], nil)
	if err != nil {
		// GCM authentication failure: wrong key or corrupted record.
		return nil, ErrDecrypt
	}
	return plain, nil
}
