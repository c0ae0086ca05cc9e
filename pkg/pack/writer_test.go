package pack

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// testLedger records package lifecycle calls in memory.
type testLedger struct {
	mu        sync.Mutex
	next      map[string]uint64
	updated   map[string]int64
	sealed    []SealedPackage
	discarded []string
}

func newTestLedger() *testLedger {
	return &testLedger{next: make(map[string]uint64), updated: make(map[string]int64)}
}

func (l *testLedger) NextPackageIndex(ctx context.Context, category string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next[category]++
	return l.next[category], nil
}

func (l *testLedger) UpdateRootPackage(ctx context.Context, key string, size int64, multifile int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updated[key] = size
	return nil
}

func (l *testLedger) SealRootPackage(ctx context.Context, sealed SealedPackage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sealed = append(l.sealed, sealed)
	return nil
}

func (l *testLedger) RemoveRootPackage(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discarded = append(l.discarded, key)
	return nil
}

func TestPackageKey(t *testing.T) {
	assert.Equal(t, "doc_000001", PackageKey("doc", 1))
	assert.Equal(t, "img_000042", PackageKey("img", 42))

	category, index, err := ParsePackageKey("doc_000007")
	assert.NoError(t, err)
	assert.Equal(t, "doc", category)
	assert.Equal(t, uint64(7), index)

	// categories containing underscores survive the round trip
	category, index, err = ParsePackageKey("my_cat_000003")
	assert.NoError(t, err)
	assert.Equal(t, "my_cat", category)
	assert.Equal(t, uint64(3), index)

	_, _, err = ParsePackageKey("nounderscore")
	assert.ErrorIs(t, err, ErrInvalidPackageKey)
	_, _, err = ParsePackageKey("doc_xyz")
	assert.ErrorIs(t, err, ErrInvalidPackageKey)
}

func TestWriterAppendAndRead(t *testing.T) {
	ctx := context.Background()
	backend, err := NewPosixBackend(t.TempDir())
	assert.NoError(t, err)

	ledger := newTestLedger()
	writer := NewWriter(backend, ledger, 1<<20)

	blockA := bytes.Repeat([]byte{0xaa}, 4096)
	blockB := bytes.Repeat([]byte{0xbb}, 8192)

	locA, err := writer.Append(ctx, "doc", 1, blockA)
	assert.NoError(t, err)
	assert.Equal(t, "doc_000001", locA.PackageKey)
	assert.Equal(t, int64(0), locA.Start)
	assert.Equal(t, int64(4096), locA.End)

	locB, err := writer.Append(ctx, "doc", 2, blockB)
	assert.NoError(t, err)
	assert.Equal(t, "doc_000001", locB.PackageKey, "same category shares the open package")
	assert.Equal(t, locA.End, locB.Start, "appends are contiguous")

	// the ledger sees the open package growing
	assert.Equal(t, locB.End, ledger.updated["doc_000001"])

	// a different category gets its own package
	locC, err := writer.Append(ctx, "img", 3, blockA)
	assert.NoError(t, err)
	assert.Equal(t, "img_000001", locC.PackageKey)

	// blocks are readable before any seal happened
	reader := NewReader(backend)
	got, err := reader.Read(ctx, locB)
	assert.NoError(t, err)
	assert.Equal(t, blockB, got)

	assert.NoError(t, writer.Flush(ctx))
	assert.Len(t, ledger.sealed, 2)

	// and after sealing too
	got, err = reader.Read(ctx, locA)
	assert.NoError(t, err)
	assert.Equal(t, blockA, got)
}

func TestWriterSealsAtCeiling(t *testing.T) {
	ctx := context.Background()
	backend, err := NewPosixBackend(t.TempDir())
	assert.NoError(t, err)

	ledger := newTestLedger()
	writer := NewWriter(backend, ledger, 10*1024)

	block := bytes.Repeat([]byte{0x11}, 4096)
	var locs []BlockLoc
	for i := 0; i < 6; i++ {
		loc, err := writer.Append(ctx, "doc", uint64(i), block)
		assert.NoError(t, err)
		locs = append(locs, loc)
	}

	// 3 blocks of 4KiB push a package past the 10KiB ceiling
	sealed := ledger.sealed
	assert.Len(t, sealed, 2)
	assert.Equal(t, "doc_000001", sealed[0].Key)
	assert.Equal(t, "doc_000002", sealed[1].Key)
	assert.Equal(t, int64(3*4096), sealed[0].Size)
	assert.Equal(t, 3, sealed[0].Multifile)
	assert.NotZero(t, sealed[0].CRC)

	// no block ever straddles two packages
	for _, loc := range locs {
		assert.Equal(t, int64(4096), loc.End-loc.Start)
	}
	assert.Equal(t, locs[2].PackageKey, "doc_000001")
	assert.Equal(t, locs[3].PackageKey, "doc_000002")

	reader := NewReader(backend)
	for _, loc := range locs {
		got, err := reader.Read(ctx, loc)
		assert.NoError(t, err)
		assert.Equal(t, block, got)
	}
}

func TestWriterMultifileCount(t *testing.T) {
	ctx := context.Background()
	backend, err := NewPosixBackend(t.TempDir())
	assert.NoError(t, err)

	ledger := newTestLedger()
	writer := NewWriter(backend, ledger, 1<<20)

	block := bytes.Repeat([]byte{0x22}, 1024)
	// two files, several blocks each
	for i := 0; i < 3; i++ {
		_, err := writer.Append(ctx, "doc", 7, block)
		assert.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := writer.Append(ctx, "doc", 8, block)
		assert.NoError(t, err)
	}
	assert.NoError(t, writer.Flush(ctx))

	assert.Len(t, ledger.sealed, 1)
	assert.Equal(t, 2, ledger.sealed[0].Multifile)
	assert.Equal(t, int64(5*1024), ledger.sealed[0].Size)
}

// brokenWriteBackend stages packages normally but fails every write, so
// an opened package never receives data.
type brokenWriteBackend struct {
	BlobBackend
}

func (b *brokenWriteBackend) Create(key string) (io.WriteCloser, error) {
	wc, err := b.BlobBackend.Create(key)
	if err != nil {
		return nil, err
	}
	return &brokenWriter{wc}, nil
}

type brokenWriter struct {
	io.WriteCloser
}

func (w *brokenWriter) Write(p []byte) (int, error) {
	return 0, errors.New("device error")
}

func TestWriterDiscardsEmptyPackage(t *testing.T) {
	ctx := context.Background()
	posix, err := NewPosixBackend(t.TempDir())
	assert.NoError(t, err)

	ledger := newTestLedger()
	writer := NewWriter(&brokenWriteBackend{posix}, ledger, 1<<20)

	_, err = writer.Append(ctx, "doc", 1, []byte("payload"))
	assert.Error(t, err)

	// the failed append left an open zero-size package behind; Flush
	// must reclaim the staged file and its ledger row instead of
	// sealing an empty package
	assert.NoError(t, writer.Flush(ctx))
	assert.Empty(t, ledger.sealed)
	assert.Equal(t, []string{"doc_000001"}, ledger.discarded)

	_, err = posix.ReadRange(ctx, "doc_000001", 0, 1)
	assert.Error(t, err)
}

func TestPosixBackendRemove(t *testing.T) {
	ctx := context.Background()
	backend, err := NewPosixBackend(t.TempDir())
	assert.NoError(t, err)

	w, err := backend.Create("doc_000001")
	assert.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, backend.Seal(ctx, "doc_000001"))

	assert.NoError(t, backend.Remove(ctx, "doc_000001"))
	_, err = backend.ReadRange(ctx, "doc_000001", 0, 7)
	assert.Error(t, err)

	// removing a missing package is not an error
	assert.NoError(t, backend.Remove(ctx, "doc_000099"))
}
