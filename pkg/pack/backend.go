package pack

import (
	"context"
	"io"
)

// BlobBackend abstracts where sealed packages live. The writer stages a
// package through Create/appends, then Seal finalizes it; ReadRange must
// serve blocks from sealed and still-staged packages alike.
type BlobBackend interface {
	// Create opens a staging handle for a new package.
	Create(key string) (io.WriteCloser, error)

	// Seal finalizes a fully written package. After Seal returns the
	// package is durable and immutable.
	Seal(ctx context.Context, key string) error

	// ReadRange returns the bytes [start, end) of a package.
	ReadRange(ctx context.Context, key string, start, end int64) ([]byte, error)

	// Remove deletes a package. Used by garbage collection only.
	Remove(ctx context.Context, key string) error
}
