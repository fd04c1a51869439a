// Package crypto encrypts message bodies at rest. A single process-wide
// key seals every message; each Encrypt call draws a fresh random nonce
// so identical plaintexts never share ciphertext.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Placeholder is returned in place of content that can no longer be
// decrypted, so listing and search stay usable on corrupted records.
const Placeholder = "[unreadable message]"

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Cleartext is the outcome of a decryption. It either carries the
// plaintext or marks the record as corrupted; callers must handle the
// corrupted case explicitly instead of catching an error.
type Cleartext struct {
	Text      string
	Corrupted bool
}

// String renders the plaintext, or the fixed placeholder for corrupted
// records.
func (c Cleartext) String() string {
	if c.Corrupted {
		return Placeholder
	}
	return c.Text
}

// Codec seals and opens message bodies with XChaCha20-Poly1305. The
// extended nonce makes random nonces safe across any number of messages.
type Codec struct {
	key []byte
}

func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("message key must be %d bytes, got %d", KeySize, len(key))
	}
	// Fail fast on an unusable key rather than on the first message.
	if _, err := chacha20poly1305.NewX(key); err != nil {
		return nil, err
	}
	return &Codec{key: append([]byte(nil), key...)}, nil
}

// ParseKey decodes a hex-encoded process-wide key, as supplied through
// the environment.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("message key is not valid hex: %w", err)
	}
	return key, nil
}

// Encrypt seals the plaintext under a freshly generated iv. The iv is
// never reused, neither across messages nor across successive edits of
// the same message.
func (c *Codec) Encrypt(plaintext string) (ciphertext, iv []byte, err error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, nil, err
	}
	iv = make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("iv generation failed: %w", err)
	}
	return aead.Seal(nil, iv, []byte(plaintext), nil), iv, nil
}

// Decrypt opens a stored ciphertext/iv pair. It never fails the caller:
// corruption, truncation or a key mismatch yield a Corrupted result so
// bulk operations keep working past individual bad records.
func (c *Codec) Decrypt(ciphertext, iv []byte) Cleartext {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return Cleartext{Corrupted: true}
	}
	if len(iv) != aead.NonceSize() {
		return Cleartext{Corrupted: true}
	}
	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return Cleartext{Corrupted: true}
	}
	return Cleartext{Text: string(plaintext)}
}
