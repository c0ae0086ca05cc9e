// Package engine ties the chunker, codec, and package store together
// behind the two top-level operations: ProcessFile and Reconstruct.
package engine

import (
	"time"

	"github.com/cloudpack/packstore/internal/compression"
	"github.com/cloudpack/packstore/pkg/codec"
)

// Fileset is the per-file metadata record. A shadow fileset carries no
// blocks of its own; it shares the whole-file hash of an earlier
// canonical fileset and resolves to it on reconstruct.
type Fileset struct {
	Key       uint64    `json:"key"`
	SourceKey string    `json:"source_key"` // logical name files are stored and restored under
	Path      string    `json:"path"`       // origin filesystem path at ingest time
	Size      int64     `json:"size"`
	Hash      string    `json:"hash"` // whole-file SHA-256, hex
	Category  string    `json:"category"`
	IsShadow  bool      `json:"is_shadow"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
}

func (f *Fileset) Clone() *Fileset {
	clone := *f
	return &clone
}

// Blockset records one encoded block of a fileset: where its bytes live
// and everything needed to decode and verify them.
type Blockset struct {
	FilesetKey   uint64                      `json:"fileset_key"`
	Index        int                         `json:"index"`
	FP           string                      `json:"fp"` // pre-encode chunk SHA-256, hex
	RawSize      int                         `json:"raw_size"`
	Size         int                         `json:"size"` // encoded size as stored
	PackageKey   string                      `json:"package_key"`
	StartIndex   int64                       `json:"start_index"`
	EndIndex     int64                       `json:"end_index"`
	CompressType compression.CompressionType `json:"compress_type"`
	EncryptType  codec.EncryptionType        `json:"encrypt_type"`
}

// RootPackage is the metadata row of one package file.
type RootPackage struct {
	Key       string    `json:"key"`
	Category  string    `json:"category"`
	Index     uint64    `json:"index"`
	Size      int64     `json:"size"`
	Multifile int       `json:"multifile"` // distinct filesets stored inside
	Sealed    bool      `json:"sealed"`
	CRC       uint32    `json:"crc"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
}

// StoreFormat is persisted once per store. The KDF salt must survive
// restarts or passphrase-derived keys stop opening old blocks.
type StoreFormat struct {
	Version int       `json:"version"`
	UUID    string    `json:"uuid"`
	KDFSalt string    `json:"kdf_salt"` // hex
	Created time.Time `json:"created"`
}

// IngestResult summarizes one ProcessFile call.
type IngestResult struct {
	FilesetKey  uint64
	SourceKey   string
	Hash        string
	Size        int64
	Dedup       bool
	Chunks      int
	StoredBytes int64 // encoded bytes appended; zero on a dedup hit
	Elapsed     time.Duration
}
