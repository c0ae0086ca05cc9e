package engine

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cloudpack/packstore/pkg/pack"
)

// MockMetaStore is a mock implementation of the MetaStore interface for testing.
type MockMetaStore struct {
	mock.Mock
}

func (m *MockMetaStore) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockMetaStore) Shutdown() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockMetaStore) LoadFormat(ctx context.Context) (*StoreFormat, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StoreFormat), args.Error(1)
}

func (m *MockMetaStore) PersistFormat(ctx context.Context, format *StoreFormat) error {
	args := m.Called(ctx, format)
	return args.Error(0)
}

func (m *MockMetaStore) NextFilesetKey(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockMetaStore) NextPackageIndex(ctx context.Context, category string) (uint64, error) {
	args := m.Called(ctx, category)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockMetaStore) UpdateRootPackage(ctx context.Context, key string, size int64, multifile int) error {
	args := m.Called(ctx, key, size, multifile)
	return args.Error(0)
}

func (m *MockMetaStore) RegisterFileHash(ctx context.Context, hash string, key uint64) (uint64, bool, error) {
	args := m.Called(ctx, hash, key)
	return args.Get(0).(uint64), args.Bool(1), args.Error(2)
}

func (m *MockMetaStore) UnregisterFileHash(ctx context.Context, hash string, key uint64) error {
	args := m.Called(ctx, hash, key)
	return args.Error(0)
}

func (m *MockMetaStore) CommitFileset(ctx context.Context, fs *Fileset, blocks []Blockset, pkgKeys []string) error {
	args := m.Called(ctx, fs, blocks, pkgKeys)
	return args.Error(0)
}

func (m *MockMetaStore) GetFileset(ctx context.Context, key uint64) (*Fileset, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Fileset), args.Error(1)
}

func (m *MockMetaStore) GetFilesetBySource(ctx context.Context, sourceKey string) (*Fileset, error) {
	args := m.Called(ctx, sourceKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Fileset), args.Error(1)
}

func (m *MockMetaStore) GetFilesetByHash(ctx context.Context, hash string) (*Fileset, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Fileset), args.Error(1)
}

func (m *MockMetaStore) GetBlocksets(ctx context.Context, filesetKey uint64) ([]Blockset, error) {
	args := m.Called(ctx, filesetKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Blockset), args.Error(1)
}

func (m *MockMetaStore) SealRootPackage(ctx context.Context, sealed pack.SealedPackage) error {
	args := m.Called(ctx, sealed)
	return args.Error(0)
}

func (m *MockMetaStore) GetRootPackage(ctx context.Context, key string) (*RootPackage, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RootPackage), args.Error(1)
}

func (m *MockMetaStore) ListRootPackages(ctx context.Context) ([]RootPackage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]RootPackage), args.Error(1)
}

func (m *MockMetaStore) PackageFilesets(ctx context.Context, pkgKey string) ([]uint64, error) {
	args := m.Called(ctx, pkgKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint64), args.Error(1)
}

func (m *MockMetaStore) DeleteFileset(ctx context.Context, fs *Fileset) error {
	args := m.Called(ctx, fs)
	return args.Error(0)
}

func (m *MockMetaStore) RemoveRootPackage(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
