package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudpack/packstore/internal"
)

// Delete removes the fileset stored under sourceKey. A canonical
// fileset that still has shadows referencing its content is protected;
// the store returns ErrConflict for it.
func (e *Engine) Delete(ctx context.Context, sourceKey string) error {
	fs, err := e.meta.GetFilesetBySource(ctx, sourceKey)
	if err != nil {
		return err
	}
	if err := e.meta.DeleteFileset(ctx, fs); err != nil {
		return err
	}
	logger.Infof("deleted fileset %d (%s)", fs.Key, sourceKey)
	return nil
}

// Sweep removes sealed packages no fileset references anymore and
// returns how many were reclaimed. Open packages are never touched.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	rows, err := e.meta.ListRootPackages(ctx)
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	for _, row := range rows {
		if !row.Sealed {
			continue
		}
		refs, err := e.meta.PackageFilesets(ctx, row.Key)
		if err != nil {
			return reclaimed, err
		}
		if len(refs) > 0 {
			continue
		}
		if err := e.backend.Remove(ctx, row.Key); err != nil {
			return reclaimed, err
		}
		if err := e.meta.RemoveRootPackage(ctx, row.Key); err != nil {
			return reclaimed, err
		}
		logger.Infof("swept package %s (%d bytes)", row.Key, row.Size)
		reclaimed++
	}
	return reclaimed, nil
}

// VerifyPackage reads a sealed package end to end and checks its bytes
// against the checksum recorded at seal time. A mismatch means the
// stored bytes changed after the seal and surfaces as ErrIntegrity.
func (e *Engine) VerifyPackage(ctx context.Context, pkgKey string) error {
	row, err := e.meta.GetRootPackage(ctx, pkgKey)
	if err != nil {
		return err
	}
	if !row.Sealed {
		return fmt.Errorf("package %s is still open", pkgKey)
	}
	data, err := e.backend.ReadRange(ctx, pkgKey, 0, row.Size)
	if err != nil {
		return err
	}
	if !internal.VerifyCRC32(data, row.CRC) {
		return fmt.Errorf("package %s failed checksum verification: %w", pkgKey, ErrIntegrity)
	}
	return nil
}

// PackageContents enumerates the filesets still stored in a package
// without touching any Blockset.
func (e *Engine) PackageContents(ctx context.Context, pkgKey string) ([]*Fileset, error) {
	keys, err := e.meta.PackageFilesets(ctx, pkgKey)
	if err != nil {
		return nil, err
	}
	filesets := make([]*Fileset, 0, len(keys))
	for _, key := range keys {
		fs, err := e.meta.GetFileset(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		filesets = append(filesets, fs)
	}
	return filesets, nil
}

// Stat returns the fileset under sourceKey without reading any blocks.
func (e *Engine) Stat(ctx context.Context, sourceKey string) (*Fileset, []Blockset, error) {
	fs, err := e.meta.GetFilesetBySource(ctx, sourceKey)
	if err != nil {
		return nil, nil, err
	}
	if fs.IsShadow {
		canonical, err := e.meta.GetFilesetByHash(ctx, fs.Hash)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, nil, err
		}
		if canonical != nil {
			blocks, err := e.meta.GetBlocksets(ctx, canonical.Key)
			if err != nil {
				return nil, nil, err
			}
			return fs, blocks, nil
		}
		return fs, nil, nil
	}
	blocks, err := e.meta.GetBlocksets(ctx, fs.Key)
	if err != nil {
		return nil, nil, err
	}
	return fs, blocks, nil
}
