package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloudpack/packstore/pkg/pack"
)

func init() {
	registerMetaDriver("mem", func(uri string) (MetaStore, error) {
		return NewMemMeta(), nil
	})
}

// memMeta is an in-process MetaStore guarded by one mutex. It backs
// tests and single-process runs that have no Redis around.
type memMeta struct {
	mu sync.Mutex

	format      *StoreFormat
	nextFileset uint64
	nextPkg     map[string]uint64

	hashIndex   map[string]uint64
	hashRefs    map[string]int
	sourceIndex map[string]uint64
	filesets    map[uint64]*Fileset
	blocksets   map[uint64][]Blockset
	packages    map[string]*RootPackage
	pkgFilesets map[string]map[uint64]struct{}
	fsPackages  map[uint64][]string
}

func NewMemMeta() MetaStore {
	return &memMeta{
		nextPkg:     make(map[string]uint64),
		hashIndex:   make(map[string]uint64),
		hashRefs:    make(map[string]int),
		sourceIndex: make(map[string]uint64),
		filesets:    make(map[uint64]*Fileset),
		blocksets:   make(map[uint64][]Blockset),
		packages:    make(map[string]*RootPackage),
		pkgFilesets: make(map[string]map[uint64]struct{}),
		fsPackages:  make(map[uint64][]string),
	}
}

func (m *memMeta) Name() string    { return "mem" }
func (m *memMeta) Shutdown() error { return nil }

func (m *memMeta) LoadFormat(ctx context.Context) (*StoreFormat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.format == nil {
		return nil, ErrNotFound
	}
	clone := *m.format
	return &clone, nil
}

func (m *memMeta) PersistFormat(ctx context.Context, format *StoreFormat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *format
	m.format = &clone
	return nil
}

func (m *memMeta) NextFilesetKey(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextFileset++
	return m.nextFileset, nil
}

func (m *memMeta) NextPackageIndex(ctx context.Context, category string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPkg[category]++
	index := m.nextPkg[category]
	now := time.Now()
	key := pack.PackageKey(category, index)
	m.packages[key] = &RootPackage{
		Key:      key,
		Category: category,
		Index:    index,
		Created:  now,
		Updated:  now,
	}
	m.pkgFilesets[key] = make(map[uint64]struct{})
	return index, nil
}

func (m *memMeta) UpdateRootPackage(ctx context.Context, key string, size int64, multifile int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.packages[key]
	if !ok {
		return ErrNotFound
	}
	row.Size = size
	row.Multifile = multifile
	row.Updated = time.Now()
	return nil
}

func (m *memMeta) RegisterFileHash(ctx context.Context, hash string, key uint64) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if winner, ok := m.hashIndex[hash]; ok {
		return winner, false, nil
	}
	m.hashIndex[hash] = key
	return key, true, nil
}

func (m *memMeta) UnregisterFileHash(ctx context.Context, hash string, key uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.hashIndex[hash]; ok && owner == key {
		delete(m.hashIndex, hash)
	}
	return nil
}

func (m *memMeta) CommitFileset(ctx context.Context, fs *Fileset, blocks []Blockset, pkgKeys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filesets[fs.Key] = fs.Clone()
	m.sourceIndex[fs.SourceKey] = fs.Key
	if fs.IsShadow {
		m.hashRefs[fs.Hash]++
	}
	if len(blocks) > 0 {
		m.blocksets[fs.Key] = append([]Blockset(nil), blocks...)
	}
	for _, pkgKey := range pkgKeys {
		if _, ok := m.pkgFilesets[pkgKey]; !ok {
			m.pkgFilesets[pkgKey] = make(map[uint64]struct{})
		}
		m.pkgFilesets[pkgKey][fs.Key] = struct{}{}
		m.fsPackages[fs.Key] = append(m.fsPackages[fs.Key], pkgKey)
	}
	return nil
}

func (m *memMeta) GetFileset(ctx context.Context, key uint64) (*Fileset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fs, ok := m.filesets[key]
	if !ok {
		return nil, ErrNotFound
	}
	return fs.Clone(), nil
}

func (m *memMeta) GetFilesetBySource(ctx context.Context, sourceKey string) (*Fileset, error) {
	m.mu.Lock()
	key, ok := m.sourceIndex[sourceKey]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetFileset(ctx, key)
}

func (m *memMeta) GetFilesetByHash(ctx context.Context, hash string) (*Fileset, error) {
	m.mu.Lock()
	key, ok := m.hashIndex[hash]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetFileset(ctx, key)
}

func (m *memMeta) GetBlocksets(ctx context.Context, key uint64) ([]Blockset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Blockset(nil), m.blocksets[key]...), nil
}

func (m *memMeta) SealRootPackage(ctx context.Context, sealed pack.SealedPackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.packages[sealed.Key]
	if !ok {
		return ErrNotFound
	}
	row.Size = sealed.Size
	row.Multifile = sealed.Multifile
	row.CRC = sealed.CRC
	row.Sealed = true
	row.Updated = time.Now()
	return nil
}

func (m *memMeta) GetRootPackage(ctx context.Context, key string) (*RootPackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.packages[key]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func (m *memMeta) ListRootPackages(ctx context.Context) ([]RootPackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]RootPackage, 0, len(m.packages))
	for _, row := range m.packages {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows, nil
}

func (m *memMeta) PackageFilesets(ctx context.Context, pkgKey string) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]uint64, 0, len(m.pkgFilesets[pkgKey]))
	for key := range m.pkgFilesets[pkgKey] {
		keys = append(keys, key)
	}
	return keys, nil
}

func (m *memMeta) DeleteFileset(ctx context.Context, fs *Fileset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !fs.IsShadow && m.hashRefs[fs.Hash] > 0 {
		return fmt.Errorf("fileset %d still has %d shadows: %w", fs.Key, m.hashRefs[fs.Hash], ErrConflict)
	}
	delete(m.filesets, fs.Key)
	delete(m.blocksets, fs.Key)
	delete(m.sourceIndex, fs.SourceKey)
	if fs.IsShadow {
		if m.hashRefs[fs.Hash]--; m.hashRefs[fs.Hash] <= 0 {
			delete(m.hashRefs, fs.Hash)
		}
	} else {
		if owner, ok := m.hashIndex[fs.Hash]; ok && owner == fs.Key {
			delete(m.hashIndex, fs.Hash)
		}
		delete(m.hashRefs, fs.Hash)
	}
	for _, pkgKey := range m.fsPackages[fs.Key] {
		delete(m.pkgFilesets[pkgKey], fs.Key)
	}
	delete(m.fsPackages, fs.Key)
	return nil
}

func (m *memMeta) RemoveRootPackage(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.packages, key)
	delete(m.pkgFilesets, key)
	return nil
}
