package compression

import "github.com/klauspost/compress/zstd"

// ZstdCompressor implements the Compressor interface using Zstandard.
// Encoder and decoder are created once and reused; both are safe for
// concurrent use via EncodeAll/DecodeAll.
type ZstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd returns a new ZstdCompressor.
func NewZstd() *ZstdCompressor {
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	dec, _ := zstd.NewReader(nil)
	return &ZstdCompressor{enc: enc, dec: dec}
}

func (c *ZstdCompressor) Type() CompressionType {
	return Compress_zstd
}

func (c *ZstdCompressor) TypeString() string {
	return "zstd"
}

// Compress compresses data using Zstandard.
func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, nil), nil
}

// Decompress decompresses data using Zstandard.
func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	decompressed, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, err
	}
	if decompressed == nil {
		return []byte{}, nil
	}
	return decompressed, nil
}
