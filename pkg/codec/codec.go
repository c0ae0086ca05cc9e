// Package codec implements the block encoder: a chunk is compressed
// first, then sealed with an AEAD cipher. Deduplication always operates
// on pre-encode content hashes, so key or algorithm choice never affects
// whether two chunks are recognized as identical.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/cloudpack/packstore/internal"
	"github.com/cloudpack/packstore/internal/compression"
)

type EncryptionType byte

const (
	Encrypt_aes256gcm EncryptionType = iota //0
	Encrypt_chacha20                        //1
)

func (t EncryptionType) String() string {
	switch t {
	case Encrypt_aes256gcm:
		return "aes256-gcm"
	case Encrypt_chacha20:
		return "chacha20-poly1305"
	}
	return "unknown"
}

var (
	EncryptionMethods = map[string]EncryptionType{
		"aes256-gcm":        Encrypt_aes256gcm,
		"chacha20-poly1305": Encrypt_chacha20,
	}

	ErrInvalidEncryptionType = errors.New("invalid encryption type")
	ErrInvalidKeySize        = errors.New("encryption key must be 32 bytes")

	// ErrIntegrity is returned when an encoded block fails authentication
	// or the decoded bytes do not match the recorded chunk hash. It is
	// deterministic and must never be retried.
	ErrIntegrity = errors.New("block integrity check failed")
)

var logger = internal.GetLogger("codec")

// BlockMeta describes one encoded block; it is recorded in the block's
// Blockset row and fed back verbatim on decode.
type BlockMeta struct {
	FP           string // pre-encode SHA-256 of the chunk, raw 32 bytes
	RawSize      int    // pre-encode chunk length
	Size         int    // encoded length as stored
	CompressType compression.CompressionType
	EncryptType  EncryptionType
}

// BlockCodec encodes and decodes chunks for one job. It is safe for
// concurrent use: the AEAD and compressor are stateless per call, and
// nonce uniqueness is handled by the per-file NonceSeq.
type BlockCodec struct {
	compressor  compression.Compressor
	aead        cipher.AEAD
	compType    compression.CompressionType
	encryptType EncryptionType
}

// NewBlockCodec builds a codec from algorithm names and a 32-byte key.
func NewBlockCodec(compressionStr, encryptionStr string, key []byte) (*BlockCodec, error) {
	compressor, err := compression.GetCompressorViaString(compressionStr)
	if err != nil {
		return nil, fmt.Errorf("unknown compression %q: %w", compressionStr, err)
	}

	encType, ok := EncryptionMethods[encryptionStr]
	if !ok {
		return nil, fmt.Errorf("unknown encryption %q: %w", encryptionStr, ErrInvalidEncryptionType)
	}
	if len(key) != 32 {
		return nil, ErrInvalidKeySize
	}

	var aead cipher.AEAD
	switch encType {
	case Encrypt_aes256gcm:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		aead, err = cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
	case Encrypt_chacha20:
		aead, err = chacha20poly1305.New(key)
		if err != nil {
			return nil, err
		}
	}

	compType := compression.Compress_none
	if compressor != nil {
		compType = compressor.Type()
	}

	return &BlockCodec{
		compressor:  compressor,
		aead:        aead,
		compType:    compType,
		encryptType: encType,
	}, nil
}

// Encode compresses then encrypts one chunk. The nonce is prefixed to the
// ciphertext so the stored block is self-describing.
func (c *BlockCodec) Encode(chunk []byte, nonce Nonce) ([]byte, BlockMeta, error) {
	meta := BlockMeta{
		FP:           CalcFP(chunk),
		RawSize:      len(chunk),
		CompressType: c.compType,
		EncryptType:  c.encryptType,
	}

	data := chunk
	if c.compressor != nil {
		compressed, err := c.compressor.Compress(chunk)
		if err != nil {
			return nil, meta, fmt.Errorf("failed to compress chunk: %w", err)
		}
		data = compressed
	}

	out := make([]byte, NonceSize, NonceSize+len(data)+c.aead.Overhead())
	copy(out, nonce[:])
	out = c.aead.Seal(out, nonce[:], data, nil)

	meta.Size = len(out)
	return out, meta, nil
}

// Decode reverses Encode and verifies the decoded bytes against the
// recorded chunk hash. Authentication failure and hash mismatch both
// surface as ErrIntegrity.
func (c *BlockCodec) Decode(encoded []byte, meta BlockMeta) ([]byte, error) {
	if len(encoded) < NonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("encoded block too short (%d bytes): %w", len(encoded), ErrIntegrity)
	}
	nonce := encoded[:NonceSize]

	data, err := c.aead.Open(nil, nonce, encoded[NonceSize:], nil)
	if err != nil {
		logger.Errorf("Decode: AEAD authentication failed for fp %s: %v", internal.StringToHex(meta.FP), err)
		return nil, fmt.Errorf("authentication failed: %w", ErrIntegrity)
	}

	if comp := meta.CompressType; comp != compression.Compress_none {
		compressor, err := compression.GetCompressorViaType(comp)
		if err != nil {
			return nil, err
		}
		data, err = compressor.Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress block: %w", err)
		}
	}

	if meta.RawSize != len(data) {
		return nil, fmt.Errorf("decoded length %d != recorded %d: %w", len(data), meta.RawSize, ErrIntegrity)
	}
	if CalcFP(data) != meta.FP {
		return nil, fmt.Errorf("chunk hash mismatch for fp %s: %w", internal.StringToHex(meta.FP), ErrIntegrity)
	}
	return data, nil
}

// CalcFP computes the content fingerprint of a chunk: its SHA-256 digest
// kept as a raw 32-byte string, usable directly as a map key.
func CalcFP(buf []byte) string {
	sum := sha256.Sum256(buf)
	return string(sum[:])
}
