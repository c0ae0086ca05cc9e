// Package pack stores encoded blocks in append-only package files.
// Packages are sharded by category so that files of one kind cluster
// together; each package grows until it reaches the size ceiling, is
// sealed, and a fresh one with the next index takes its place.
package pack

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudpack/packstore/internal"
)

var logger = internal.GetLogger("pack")

// DefaultSizeCeiling is the append ceiling after which a package is
// sealed. A block is never split across packages, so a package may end
// slightly above the ceiling.
const DefaultSizeCeiling = 64 << 20

var ErrInvalidPackageKey = errors.New("invalid package key")

// PackageKey renders the canonical package file name: the category
// label joined with the zero-padded per-category index.
func PackageKey(category string, index uint64) string {
	return fmt.Sprintf("%s_%06d", category, index)
}

// ParsePackageKey splits a package key back into category and index.
func ParsePackageKey(key string) (category string, index uint64, err error) {
	pos := strings.LastIndexByte(key, '_')
	if pos <= 0 || pos == len(key)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidPackageKey, key)
	}
	index, err = strconv.ParseUint(key[pos+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidPackageKey, key)
	}
	return key[:pos], index, nil
}

// BlockLoc addresses one encoded block inside a package:
// the half-open byte range [Start, End).
type BlockLoc struct {
	PackageKey string
	Start      int64
	End        int64
}

// SealedPackage reports a package that just reached its ceiling (or was
// force-sealed on shutdown) so the caller can persist its final state.
type SealedPackage struct {
	Key       string
	Category  string
	Index     uint64
	Size      int64
	Multifile int
	CRC       uint32
}
