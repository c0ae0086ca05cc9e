package codec

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

var testKey = bytes.Repeat([]byte{0x5a}, 32)

func TestNewBlockCodec(t *testing.T) {
	t.Run("valid combinations", func(t *testing.T) {
		for _, comp := range []string{"none", "zlib", "snappy", "zstd"} {
			for _, enc := range []string{"aes256-gcm", "chacha20-poly1305"} {
				c, err := NewBlockCodec(comp, enc, testKey)
				assert.NoError(t, err, "%s/%s", comp, enc)
				assert.NotNil(t, c)
			}
		}
	})

	t.Run("bad compression", func(t *testing.T) {
		_, err := NewBlockCodec("lz99", "aes256-gcm", testKey)
		assert.Error(t, err)
	})

	t.Run("bad encryption", func(t *testing.T) {
		_, err := NewBlockCodec("zstd", "rot13", testKey)
		assert.ErrorIs(t, err, ErrInvalidEncryptionType)
	})

	t.Run("bad key size", func(t *testing.T) {
		_, err := NewBlockCodec("zstd", "aes256-gcm", []byte("short"))
		assert.ErrorIs(t, err, ErrInvalidKeySize)
	})
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := func() []byte {
		d := make([]byte, 0, 30000)
		d = append(d, bytes.Repeat([]byte("blockdata"), 3000)...)
		for i := 0; i < 3000; i++ {
			d = append(d, byte(i*13))
		}
		return d
	}()

	for _, comp := range []string{"none", "zlib", "snappy", "zstd"} {
		for _, enc := range []string{"aes256-gcm", "chacha20-poly1305"} {
			t.Run(comp+"/"+enc, func(t *testing.T) {
				c, err := NewBlockCodec(comp, enc, testKey)
				assert.NoError(t, err)

				nonce, err := NewNonceSeq(1).Next()
				assert.NoError(t, err)

				encoded, meta, err := c.Encode(payload, nonce)
				assert.NoError(t, err)
				assert.Equal(t, len(payload), meta.RawSize)
				assert.Equal(t, len(encoded), meta.Size)
				assert.Equal(t, CalcFP(payload), meta.FP)
				// ciphertext must not reveal the plaintext
				assert.NotContains(t, string(encoded), "blockdata")

				decoded, err := c.Decode(encoded, meta)
				assert.NoError(t, err)
				assert.Equal(t, payload, decoded)
			})
		}
	}
}

func TestEncodeDecodeEdgeSizes(t *testing.T) {
	c, err := NewBlockCodec("zstd", "aes256-gcm", testKey)
	assert.NoError(t, err)
	seq := NewNonceSeq(2)

	for _, payload := range [][]byte{{}, {0x01}} {
		nonce, err := seq.Next()
		assert.NoError(t, err)
		encoded, meta, err := c.Encode(payload, nonce)
		assert.NoError(t, err)
		decoded, err := c.Decode(encoded, meta)
		assert.NoError(t, err)
		assert.Equal(t, len(payload), len(decoded))
	}
}

func TestDecodeCorruption(t *testing.T) {
	c, err := NewBlockCodec("snappy", "aes256-gcm", testKey)
	assert.NoError(t, err)

	nonce, err := NewNonceSeq(3).Next()
	assert.NoError(t, err)

	payload := bytes.Repeat([]byte("sensitive"), 1000)
	encoded, meta, err := c.Encode(payload, nonce)
	assert.NoError(t, err)

	t.Run("flipped ciphertext bit", func(t *testing.T) {
		corrupted := append([]byte(nil), encoded...)
		corrupted[len(corrupted)/2] ^= 0x01
		_, err := c.Decode(corrupted, meta)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("flipped nonce bit", func(t *testing.T) {
		corrupted := append([]byte(nil), encoded...)
		corrupted[0] ^= 0x80
		_, err := c.Decode(corrupted, meta)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := c.Decode(encoded[:NonceSize], meta)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("wrong recorded fp", func(t *testing.T) {
		bad := meta
		bad.FP = CalcFP([]byte("something else"))
		_, err := c.Decode(encoded, bad)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewBlockCodec("snappy", "aes256-gcm", bytes.Repeat([]byte{0x77}, 32))
		assert.NoError(t, err)
		_, err = other.Decode(encoded, meta)
		assert.ErrorIs(t, err, ErrIntegrity)
	})
}

func TestNonceSeq(t *testing.T) {
	seq := NewNonceSeq(42)

	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], 42)

	seen := make(map[Nonce]bool)
	for i := 0; i < 1000; i++ {
		n, err := seq.Next()
		assert.NoError(t, err)
		assert.False(t, seen[n], "nonce must never repeat")
		seen[n] = true
		assert.Equal(t, prefix[:], n[:8], "prefix is the file key")
	}

	// two files never share a nonce even at the same block index
	a, err := NewNonceSeq(7).Next()
	assert.NoError(t, err)
	b, err := NewNonceSeq(8).Next()
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)

	// a wrapped counter refuses to hand out a reused nonce
	exhausted := NewNonceSeq(9)
	exhausted.counter = ^uint32(0)
	_, err = exhausted.Next()
	assert.ErrorIs(t, err, ErrNonceExhausted)
}

func TestDeriveKey(t *testing.T) {
	salt, err := NewKDFSalt()
	assert.NoError(t, err)

	t.Run("hex key used raw", func(t *testing.T) {
		hexKey := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
		key, err := DeriveKey(hexKey, salt)
		assert.NoError(t, err)
		assert.Len(t, key, KeySize)
		assert.Equal(t, byte(0x1f), key[31])
	})

	t.Run("passphrase stretched", func(t *testing.T) {
		key, err := DeriveKey("correct horse battery staple", salt)
		assert.NoError(t, err)
		assert.Len(t, key, KeySize)

		again, err := DeriveKey("correct horse battery staple", salt)
		assert.NoError(t, err)
		assert.Equal(t, key, again)

		flipped := append([]byte(nil), salt...)
		flipped[0] ^= 0xff
		other, err := DeriveKey("correct horse battery staple", flipped)
		assert.NoError(t, err)
		assert.NotEqual(t, key, other)
	})

	t.Run("empty material", func(t *testing.T) {
		_, err := DeriveKey("", salt)
		assert.Error(t, err)
	})

	t.Run("passphrase without salt", func(t *testing.T) {
		_, err := DeriveKey("passphrase", nil)
		assert.Error(t, err)
	})
}
