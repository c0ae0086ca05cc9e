package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cloudpack/packstore/internal"
	fastcdc "github.com/cloudpack/packstore/pkg/cdc"
	"github.com/cloudpack/packstore/pkg/codec"
)

// ProcessFile ingests one file under sourceKey. The file is read twice:
// the first pass computes the whole-file hash for dedup, and only a
// dedup miss pays for chunking, encoding, and package writes. A hit
// commits a shadow fileset and touches no packages.
func (e *Engine) ProcessFile(ctx context.Context, path, sourceKey string) (*IngestResult, error) {
	start := time.Now()
	if sourceKey == "" {
		sourceKey = path
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	hash, size, err := HashReader(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	// Re-ingesting an unchanged source is a no-op; a changed source
	// replaces its previous fileset.
	if prev, err := e.meta.GetFilesetBySource(ctx, sourceKey); err == nil {
		if prev.Hash == hash && prev.Size == size {
			logger.Debugf("ProcessFile: %s unchanged, fileset %d", sourceKey, prev.Key)
			return &IngestResult{
				FilesetKey: prev.Key,
				SourceKey:  sourceKey,
				Hash:       hash,
				Size:       size,
				Dedup:      true,
				Elapsed:    time.Since(start),
			}, nil
		}
		if err := e.Delete(ctx, sourceKey); err != nil && !errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("failed to replace fileset for %s: %w", sourceKey, err)
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	key, err := e.meta.NextFilesetKey(ctx)
	if err != nil {
		return nil, err
	}

	winner, registered, err := e.meta.RegisterFileHash(ctx, hash, key)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	fs := &Fileset{
		Key:       key,
		SourceKey: sourceKey,
		Path:      path,
		Size:      size,
		Hash:      hash,
		Category:  Categorize(sourceKey),
		Created:   now,
		Updated:   now,
	}

	if !registered {
		// someone already owns this content, record a shadow
		fs.IsShadow = true
		if err := e.meta.CommitFileset(ctx, fs, nil, nil); err != nil {
			return nil, err
		}
		logger.Debugf("ProcessFile: %s dedups to fileset %d", sourceKey, winner)
		return &IngestResult{
			FilesetKey: key,
			SourceKey:  sourceKey,
			Hash:       hash,
			Size:       size,
			Dedup:      true,
			Elapsed:    time.Since(start),
		}, nil
	}

	blocks, stored, err := e.encodeFile(ctx, path, fs)
	if err != nil {
		if uerr := e.meta.UnregisterFileHash(ctx, hash, key); uerr != nil {
			logger.Errorf("ProcessFile: failed to release hash claim for %s: %v", sourceKey, uerr)
		}
		return nil, err
	}

	pkgs := internal.NewStringSet()
	for _, bs := range blocks {
		pkgs.Add(bs.PackageKey)
	}
	if err := e.meta.CommitFileset(ctx, fs, blocks, pkgs.Elements()); err != nil {
		if uerr := e.meta.UnregisterFileHash(ctx, hash, key); uerr != nil {
			logger.Errorf("ProcessFile: failed to release hash claim for %s: %v", sourceKey, uerr)
		}
		return nil, err
	}

	res := &IngestResult{
		FilesetKey:  key,
		SourceKey:   sourceKey,
		Hash:        hash,
		Size:        size,
		Chunks:      len(blocks),
		StoredBytes: stored,
		Elapsed:     time.Since(start),
	}
	logger.Infof("ProcessFile: %s -> fileset %d, %d chunks, %d stored bytes",
		sourceKey, key, res.Chunks, res.StoredBytes)
	return res, nil
}

type encodeJob struct {
	index int
	data  []byte
}

type encodeDone struct {
	index   int
	encoded []byte
	meta    codec.BlockMeta
}

// encodeFile runs the second pass: chunk, encode in parallel, and append
// to packages in chunk order so a file's blocks stay contiguous.
func (e *Engine) encodeFile(ctx context.Context, path string, fs *Fileset) ([]Blockset, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to reopen %s: %w", path, err)
	}
	defer f.Close()

	seq := codec.NewNonceSeq(fs.Key)

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan encodeJob, e.conf.Workers)
	done := make(chan encodeDone, e.conf.Workers)

	g.Go(func() error {
		defer close(jobs)
		return e.produceChunks(gctx, f, fs.Size, jobs)
	})

	var workers sync.WaitGroup
	for i := 0; i < e.conf.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for job := range jobs {
				nonce, err := seq.Next()
				if err != nil {
					return err
				}
				encoded, meta, err := e.codec.Encode(job.data, nonce)
				if err != nil {
					return err
				}
				select {
				case done <- encodeDone{index: job.index, encoded: encoded, meta: meta}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(done)
	}()

	var (
		blocks []Blockset
		stored int64
	)
	g.Go(func() error {
		pending := make(map[int]encodeDone)
		next := 0
		for d := range done {
			pending[d.index] = d
			for {
				cur, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				loc, err := e.writer.Append(gctx, fs.Category, fs.Key, cur.encoded)
				if err != nil {
					return err
				}
				blocks = append(blocks, Blockset{
					FilesetKey:   fs.Key,
					Index:        cur.index,
					FP:           internal.StringToHex(cur.meta.FP),
					RawSize:      cur.meta.RawSize,
					Size:         cur.meta.Size,
					PackageKey:   loc.PackageKey,
					StartIndex:   loc.Start,
					EndIndex:     loc.End,
					CompressType: cur.meta.CompressType,
					EncryptType:  cur.meta.EncryptType,
				})
				stored += int64(len(cur.encoded))
				next++
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Index < blocks[j].Index })
	var raw int64
	for _, bs := range blocks {
		raw += int64(bs.RawSize)
	}
	if raw != fs.Size {
		return nil, 0, fmt.Errorf("chunked %d bytes of %d for %s: file changed during ingest", raw, fs.Size, fs.SourceKey)
	}
	return blocks, stored, nil
}

// produceChunks feeds the chunker output into the encode stage. Files
// above the segment size are chunked segment by segment so the chunker
// buffer stays bounded regardless of file size.
func (e *Engine) produceChunks(ctx context.Context, f *os.File, size int64, jobs chan<- encodeJob) error {
	index := 0
	var consumed int64
	var chunker *fastcdc.Chunker

	for consumed < size || size == 0 {
		segSize := e.conf.SegmentSize
		if size-consumed < segSize {
			segSize = size - consumed
		}
		if segSize == 0 {
			break
		}
		seg := io.LimitReader(f, segSize)
		if chunker == nil {
			var err error
			chunker, err = fastcdc.NewChunker(seg, e.conf.chunkOptions())
			if err != nil {
				return err
			}
		} else {
			chunker.Reset(seg)
		}

		for {
			chunk, err := chunker.Next()
			if err == io.EOF {
				break
			} else if err != nil {
				return err
			}
			data := make([]byte, len(chunk.Data))
			copy(data, chunk.Data)
			select {
			case jobs <- encodeJob{index: index, data: data}:
			case <-ctx.Done():
				return ctx.Err()
			}
			index++
			consumed += int64(len(data))
		}
	}
	return nil
}
