package engine

import (
	"fmt"
	"runtime"

	fastcdc "github.com/cloudpack/packstore/pkg/cdc"
	"github.com/cloudpack/packstore/pkg/pack"
)

// Config carries every knob of one store instance. Callers fill what
// they care about and Sanitize fills the rest.
type Config struct {
	// Compression is one of none, zlib, snappy, zstd.
	Compression string
	// Encryption is one of aes256-gcm, chacha20-poly1305.
	Encryption string
	// Key is either a 64-char hex raw key or a passphrase.
	Key string

	ChunkMinSize int
	ChunkAvgSize int
	ChunkMaxSize int

	// PackCeiling seals a package once it grows past this size.
	PackCeiling int64

	// Workers bounds the parallel encode stage.
	Workers int

	// SegmentSize splits very large files into independently chunked
	// segments so the chunker buffer stays bounded.
	SegmentSize int64
}

const (
	defaultChunkAvg    = 4 << 20
	defaultSegmentSize = 1 << 30
)

func (c *Config) Sanitize() error {
	if c.Compression == "" {
		c.Compression = "zstd"
	}
	if c.Encryption == "" {
		c.Encryption = "aes256-gcm"
	}
	if c.Key == "" {
		return fmt.Errorf("encryption key is required")
	}
	if c.ChunkAvgSize == 0 {
		c.ChunkAvgSize = defaultChunkAvg
	}
	if c.ChunkMinSize == 0 {
		c.ChunkMinSize = c.ChunkAvgSize / 4
	}
	if c.ChunkMaxSize == 0 {
		c.ChunkMaxSize = c.ChunkAvgSize * 4
	}
	if c.PackCeiling == 0 {
		c.PackCeiling = pack.DefaultSizeCeiling
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.SegmentSize == 0 {
		c.SegmentSize = defaultSegmentSize
	}
	if c.SegmentSize < int64(c.ChunkMaxSize) {
		return fmt.Errorf("segment size %d below max chunk size %d", c.SegmentSize, c.ChunkMaxSize)
	}
	return nil
}

func (c *Config) chunkOptions() fastcdc.Options {
	return fastcdc.Options{
		MinSize:     c.ChunkMinSize,
		AverageSize: c.ChunkAvgSize,
		MaxSize:     c.ChunkMaxSize,
	}
}
