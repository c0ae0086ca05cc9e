package pack

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cloudpack/packstore/internal"
)

const tmpSuffix = ".tmp"

// PosixBackend keeps packages on a local filesystem, one directory per
// category. Packages being written carry a .tmp suffix and are renamed
// into place on Seal, so a final-named file is always complete.
type PosixBackend struct {
	root string
}

func NewPosixBackend(root string) (*PosixBackend, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pack root %s: %w", root, err)
	}
	return &PosixBackend{root: root}, nil
}

func (b *PosixBackend) path(key string) string {
	category, _, err := ParsePackageKey(key)
	if err != nil {
		category = "misc"
	}
	return filepath.Join(b.root, category, key)
}

func (b *PosixBackend) Create(key string) (io.WriteCloser, error) {
	path := b.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path+tmpSuffix, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
}

func (b *PosixBackend) Seal(ctx context.Context, key string) error {
	path := b.path(key)
	return os.Rename(path+tmpSuffix, path)
}

func (b *PosixBackend) ReadRange(ctx context.Context, key string, start, end int64) ([]byte, error) {
	path := b.path(key)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		f, err = os.Open(path + tmpSuffix)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open package %s: %w", key, err)
	}
	defer f.Close()

	buf := make([]byte, end-start)
	if _, err := f.ReadAt(buf, start); err != nil {
		return nil, fmt.Errorf("failed to read package %s [%d,%d): %w", key, start, end, err)
	}
	return buf, nil
}

func (b *PosixBackend) Remove(ctx context.Context, key string) error {
	path := b.path(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if internal.Exists(path + tmpSuffix) {
		return os.Remove(path + tmpSuffix)
	}
	return nil
}
