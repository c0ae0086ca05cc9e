package compression

import "errors"

type CompressionType byte

const (
	Compress_none   CompressionType = iota //0
	Compress_zlib                          //1
	Compress_snappy                        //2
	Compress_zstd                          //3
)

var ErrInvalidCompressionType = errors.New("invalid compression type")

var (
	CompressionMethods = map[string]CompressionType{
		"none":   Compress_none,
		"zlib":   Compress_zlib,
		"snappy": Compress_snappy,
		"zstd":   Compress_zstd,
	}
)

// Compressor defines the interface for data compression and decompression algorithms.
type Compressor interface {
	// Compress takes a byte slice and returns the compressed data.
	Compress(data []byte) ([]byte, error)

	// Decompress takes a compressed byte slice and returns the original data.
	Decompress(data []byte) ([]byte, error)

	// TypeString returns the name of the compression, e.g., "zlib", "snappy".
	TypeString() string
	Type() CompressionType
}

// GetCompressorViaString returns the compressor registered under name.
// "none" yields a nil Compressor, which callers treat as store-uncompressed.
func GetCompressorViaString(compressionStr string) (Compressor, error) {
	compressionType, ok := CompressionMethods[compressionStr]
	if !ok {
		return nil, ErrInvalidCompressionType
	}
	return GetCompressorViaType(compressionType)
}

func GetCompressorViaType(compressionType CompressionType) (Compressor, error) {
	switch compressionType {
	case Compress_none:
		return nil, nil
	case Compress_zlib:
		return NewZlib(), nil
	case Compress_snappy:
		return NewSnappy(), nil
	case Compress_zstd:
		return NewZstd(), nil
	default:
		return nil, ErrInvalidCompressionType
	}
}
