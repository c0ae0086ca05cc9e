package pack

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"
	"sync"

	"github.com/cloudpack/packstore/internal"
)

// Ledger is the metadata side of the package lifecycle. Index
// allocation lives with the metadata store so that concurrent writers
// never mint the same key; the same store records growth while a
// package is open, its final state at seal, and drops the row of a
// package that never received data.
type Ledger interface {
	NextPackageIndex(ctx context.Context, category string) (uint64, error)
	UpdateRootPackage(ctx context.Context, key string, size int64, multifile int) error
	SealRootPackage(ctx context.Context, sealed SealedPackage) error
	RemoveRootPackage(ctx context.Context, key string) error
}

type openPackage struct {
	key      string
	category string
	index    uint64
	w        io.WriteCloser
	size     int64
	crc      uint32
	files    *internal.StringSet
}

// Writer appends encoded blocks into per-category packages. A package
// stays open across files until it reaches the size ceiling, so small
// files of the same category share a package.
type Writer struct {
	backend BlobBackend
	ledger  Ledger
	ceiling int64

	mu   sync.Mutex
	open map[string]*openPackage
}

func NewWriter(backend BlobBackend, ledger Ledger, ceiling int64) *Writer {
	if ceiling <= 0 {
		ceiling = DefaultSizeCeiling
	}
	return &Writer{
		backend: backend,
		ledger:  ledger,
		ceiling: ceiling,
		open:    make(map[string]*openPackage),
	}
}

// Append writes one encoded block into the open package of a category
// and returns where it landed. fileKey identifies the file the block
// belongs to and feeds the package's multifile count. A block is written
// whole: if it does not fit under the ceiling the current package is
// sealed first.
func (w *Writer) Append(ctx context.Context, category string, fileKey uint64, data []byte) (BlockLoc, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pkg := w.open[category]
	if pkg == nil {
		var err error
		pkg, err = w.openLocked(ctx, category)
		if err != nil {
			return BlockLoc{}, err
		}
	}

	if _, err := internal.WriteAll(pkg.w, data); err != nil {
		return BlockLoc{}, fmt.Errorf("failed to append to package %s: %w", pkg.key, err)
	}

	loc := BlockLoc{
		PackageKey: pkg.key,
		Start:      pkg.size,
		End:        pkg.size + int64(len(data)),
	}
	pkg.size = loc.End
	pkg.crc = crc32.Update(pkg.crc, crc32.IEEETable, data)
	pkg.files.Add(strconv.FormatUint(fileKey, 10))

	if pkg.size >= w.ceiling {
		if err := w.sealLocked(ctx, pkg); err != nil {
			return BlockLoc{}, err
		}
		return loc, nil
	}
	if err := w.ledger.UpdateRootPackage(ctx, pkg.key, pkg.size, pkg.files.Len()); err != nil {
		return BlockLoc{}, fmt.Errorf("failed to record growth of package %s: %w", pkg.key, err)
	}
	return loc, nil
}

func (w *Writer) openLocked(ctx context.Context, category string) (*openPackage, error) {
	index, err := w.ledger.NextPackageIndex(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate package index for %s: %w", category, err)
	}
	key := PackageKey(category, index)
	wc, err := w.backend.Create(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create package %s: %w", key, err)
	}
	logger.Infof("opened package %s", key)

	pkg := &openPackage{
		key:      key,
		category: category,
		index:    index,
		w:        wc,
		files:    internal.NewStringSet(),
	}
	w.open[category] = pkg
	return pkg, nil
}

func (w *Writer) sealLocked(ctx context.Context, pkg *openPackage) error {
	if err := pkg.w.Close(); err != nil {
		return fmt.Errorf("failed to close package %s: %w", pkg.key, err)
	}
	if err := w.backend.Seal(ctx, pkg.key); err != nil {
		return err
	}
	delete(w.open, pkg.category)

	sealed := SealedPackage{
		Key:       pkg.key,
		Category:  pkg.category,
		Index:     pkg.index,
		Size:      pkg.size,
		Multifile: pkg.files.Len(),
		CRC:       pkg.crc,
	}
	logger.Infof("sealed package %s: size %d, %d files", sealed.Key, sealed.Size, sealed.Multifile)
	if err := w.ledger.SealRootPackage(ctx, sealed); err != nil {
		return fmt.Errorf("failed to record seal of package %s: %w", sealed.Key, err)
	}
	return nil
}

// Flush seals every open package regardless of size. A package that
// never received data is removed from the backend and its row dropped
// from the ledger. Called on shutdown so no staged package is left
// behind.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, pkg := range w.open {
		if pkg.size == 0 {
			if err := pkg.w.Close(); err != nil {
				return fmt.Errorf("failed to close empty package %s: %w", pkg.key, err)
			}
			if err := w.backend.Remove(ctx, pkg.key); err != nil {
				return fmt.Errorf("failed to remove empty package %s: %w", pkg.key, err)
			}
			if err := w.ledger.RemoveRootPackage(ctx, pkg.key); err != nil {
				return fmt.Errorf("failed to drop row of empty package %s: %w", pkg.key, err)
			}
			delete(w.open, pkg.category)
			continue
		}
		if err := w.sealLocked(ctx, pkg); err != nil {
			return err
		}
	}
	return nil
}
