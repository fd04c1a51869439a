package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestCodec_RoundTrip(t *testing.T) {
	req := require.New(t)
	codec, err := NewCodec(testKey(t))
	req.NoError(err)

	for _, plaintext := range []string{
		"hello",
		"",
		"accented éèü and 中文 and emoji 🎉",
		"a longer message that spans more than one block of the underlying cipher, just to be sure",
	} {
		ciphertext, iv, err := codec.Encrypt(plaintext)
		req.NoError(err)
		req.NotEqual([]byte(plaintext), ciphertext)

		cleartext := codec.Decrypt(ciphertext, iv)
		req.False(cleartext.Corrupted)
		req.Equal(plaintext, cleartext.Text)
		req.Equal(plaintext, cleartext.String())
	}
}

func TestCodec_FreshIVOnEveryCall(t *testing.T) {
	req := require.New(t)
	codec, err := NewCodec(testKey(t))
	req.NoError(err)

	// Same plaintext, many trials: no iv (and hence no ciphertext) may repeat.
	seen := make(map[string]struct{})
	for i := 0; i < 256; i++ {
		_, iv, err := codec.Encrypt("identical plaintext")
		req.NoError(err)
		_, duplicate := seen[string(iv)]
		req.False(duplicate, "iv reused on trial %d", i)
		seen[string(iv)] = struct{}{}
	}
}

func TestCodec_DecryptNeverFails(t *testing.T) {
	req := require.New(t)
	codec, err := NewCodec(testKey(t))
	req.NoError(err)

	ciphertext, iv, err := codec.Encrypt("intact message")
	req.NoError(err)

	t.Run("corrupted ciphertext renders the placeholder", func(t *testing.T) {
		damaged := append([]byte(nil), ciphertext...)
		damaged[0] ^= 0xff
		cleartext := codec.Decrypt(damaged, iv)
		require.True(t, cleartext.Corrupted)
		require.Equal(t, Placeholder, cleartext.String())
	})

	t.Run("truncated iv renders the placeholder", func(t *testing.T) {
		cleartext := codec.Decrypt(ciphertext, iv[:4])
		require.True(t, cleartext.Corrupted)
		require.Equal(t, Placeholder, cleartext.String())
	})

	t.Run("key mismatch renders the placeholder", func(t *testing.T) {
		other, err := NewCodec(testKey(t))
		require.NoError(t, err)
		cleartext := other.Decrypt(ciphertext, iv)
		require.True(t, cleartext.Corrupted)
		require.Equal(t, Placeholder, cleartext.String())
	})
}

func TestNewCodec_RejectsBadKey(t *testing.T) {
	_, err := NewCodec([]byte("too short"))
	require.Error(t, err)
}

func TestParseKey(t *testing.T) {
	req := require.New(t)

	key, err := ParseKey("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	req.NoError(err)
	req.Len(key, KeySize)

	_, err = ParseKey("not hex at all")
	req.Error(err)
}
