package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCompressor(t *testing.T) {
	t.Run("GetCompressorViaString", func(t *testing.T) {
		// Test valid types
		c, err := GetCompressorViaString("zlib")
		assert.NoError(t, err)
		assert.IsType(t, &ZlibCompressor{}, c)

		c, err = GetCompressorViaString("snappy")
		assert.NoError(t, err)
		assert.IsType(t, &SnappyCompressor{}, c)

		c, err = GetCompressorViaString("zstd")
		assert.NoError(t, err)
		assert.IsType(t, &ZstdCompressor{}, c)

		c, err = GetCompressorViaString("none")
		assert.NoError(t, err)
		assert.Nil(t, c)

		// Test invalid type
		c, err = GetCompressorViaString("invalid")
		assert.Error(t, err)
		assert.Equal(t, ErrInvalidCompressionType, err)
		assert.Nil(t, c)
	})

	t.Run("GetCompressorViaType", func(t *testing.T) {
		// Test valid types
		c, err := GetCompressorViaType(Compress_zlib)
		assert.NoError(t, err)
		assert.IsType(t, &ZlibCompressor{}, c)

		c, err = GetCompressorViaType(Compress_snappy)
		assert.NoError(t, err)
		assert.IsType(t, &SnappyCompressor{}, c)

		c, err = GetCompressorViaType(Compress_zstd)
		assert.NoError(t, err)
		assert.IsType(t, &ZstdCompressor{}, c)

		c, err = GetCompressorViaType(Compress_none)
		assert.NoError(t, err)
		assert.Nil(t, c)

		// Test invalid type
		c, err = GetCompressorViaType(99) // Some invalid type
		assert.Error(t, err)
		assert.Equal(t, ErrInvalidCompressionType, err)
		assert.Nil(t, c)
	})
}

func TestCompressRoundTrip(t *testing.T) {
	payload := func() []byte {
		d := make([]byte, 0, 60000)
		d = append(d, bytes.Repeat([]byte("packstore"), 5000)...)
		for i := 0; i < 15000; i++ {
			d = append(d, byte(i*7))
		}
		return d
	}()

	for _, name := range []string{"zlib", "snappy", "zstd"} {
		t.Run(name, func(t *testing.T) {
			c, err := GetCompressorViaString(name)
			assert.NoError(t, err)

			compressed, err := c.Compress(payload)
			assert.NoError(t, err)
			assert.Less(t, len(compressed), len(payload), "repetitive payload should shrink")

			decompressed, err := c.Decompress(compressed)
			assert.NoError(t, err)
			assert.Equal(t, payload, decompressed)
		})
	}
}

func TestDecompressGarbage(t *testing.T) {
	for _, name := range []string{"zlib", "zstd"} {
		t.Run(name, func(t *testing.T) {
			c, err := GetCompressorViaString(name)
			assert.NoError(t, err)
			_, err = c.Decompress([]byte("definitely not a compressed stream"))
			assert.Error(t, err)
		})
	}
}
