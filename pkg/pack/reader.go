package pack

import (
	"context"
	"fmt"
)

// Reader fetches encoded blocks back out of packages by their recorded
// byte ranges. It never scans a package; every read is an exact range.
type Reader struct {
	backend BlobBackend
}

func NewReader(backend BlobBackend) *Reader {
	return &Reader{backend: backend}
}

func (r *Reader) Read(ctx context.Context, loc BlockLoc) ([]byte, error) {
	if loc.End <= loc.Start {
		return nil, fmt.Errorf("bad block range [%d,%d) in package %s", loc.Start, loc.End, loc.PackageKey)
	}
	return r.backend.ReadRange(ctx, loc.PackageKey, loc.Start, loc.End)
}
