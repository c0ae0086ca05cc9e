package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/cloudpack/packstore/internal"
	"github.com/cloudpack/packstore/pkg/codec"
	"github.com/cloudpack/packstore/pkg/pack"
)

// Reconstruct streams the file stored under sourceKey into w, verifying
// every block and the whole-file hash on the way out. A shadow fileset
// is resolved to its canonical twin first.
func (e *Engine) Reconstruct(ctx context.Context, sourceKey string, w io.Writer) (*Fileset, error) {
	fs, err := e.meta.GetFilesetBySource(ctx, sourceKey)
	if err != nil {
		return nil, err
	}
	canonical := fs
	if fs.IsShadow {
		canonical, err = e.meta.GetFilesetByHash(ctx, fs.Hash)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("shadow fileset %d has no canonical twin: %w", fs.Key, ErrIntegrity)
		} else if err != nil {
			return nil, err
		}
		if canonical.IsShadow {
			return nil, fmt.Errorf("hash index points at shadow fileset %d: %w", canonical.Key, ErrIntegrity)
		}
	}

	blocks, err := e.meta.GetBlocksets(ctx, canonical.Key)
	if err != nil {
		return nil, err
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Index < blocks[j].Index })
	for i, bs := range blocks {
		if bs.Index != i {
			return nil, fmt.Errorf("fileset %d missing block %d: %w", canonical.Key, i, ErrIntegrity)
		}
	}

	vw := newVerifyingWriter(w)
	for _, bs := range blocks {
		encoded, err := e.reader.Read(ctx, pack.BlockLoc{
			PackageKey: bs.PackageKey,
			Start:      bs.StartIndex,
			End:        bs.EndIndex,
		})
		if err != nil {
			return nil, err
		}
		bc, err := e.codecFor(bs.EncryptType)
		if err != nil {
			return nil, err
		}
		fp, err := internal.HexToString(bs.FP)
		if err != nil {
			return nil, fmt.Errorf("corrupt fp for fileset %d block %d: %w", canonical.Key, bs.Index, err)
		}
		data, err := bc.Decode(encoded, codec.BlockMeta{
			FP:           fp,
			RawSize:      bs.RawSize,
			Size:         bs.Size,
			CompressType: bs.CompressType,
			EncryptType:  bs.EncryptType,
		})
		if err != nil {
			return nil, fmt.Errorf("fileset %d block %d: %w", canonical.Key, bs.Index, err)
		}
		if _, err := internal.WriteAll(vw, data); err != nil {
			return nil, err
		}
	}

	if vw.Written() != canonical.Size {
		return nil, fmt.Errorf("reconstructed %d bytes, expected %d: %w", vw.Written(), canonical.Size, ErrIntegrity)
	}
	if vw.Sum() != canonical.Hash {
		return nil, fmt.Errorf("whole-file hash mismatch for fileset %d: %w", canonical.Key, ErrIntegrity)
	}
	return fs, nil
}

// ReconstructToFile restores sourceKey into a file at path.
func (e *Engine) ReconstructToFile(ctx context.Context, sourceKey, path string) (*Fileset, error) {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	fs, err := e.Reconstruct(ctx, sourceKey, out)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return fs, nil
}
