package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudpack/packstore/internal"
	"github.com/cloudpack/packstore/pkg/pack"
)

var logger = internal.GetLogger("engine")

// MetaStore is the metadata coordinator: filesets, blocksets, the
// whole-file hash index, and package bookkeeping. Implementations must
// make RegisterFileHash an atomic check-and-insert and CommitFileset a
// single transaction, since those two carry the dedup correctness.
type MetaStore interface {
	Name() string
	Shutdown() error

	// LoadFormat returns the persisted store format, ErrNotFound on a
	// fresh store.
	LoadFormat(ctx context.Context) (*StoreFormat, error)
	PersistFormat(ctx context.Context, format *StoreFormat) error

	NextFilesetKey(ctx context.Context) (uint64, error)

	// NextPackageIndex allocates the next index of a category and
	// records the open RootPackage row in the same step.
	NextPackageIndex(ctx context.Context, category string) (uint64, error)

	// UpdateRootPackage refreshes the size and multifile count of an
	// open package so inspection sees growth before the seal.
	UpdateRootPackage(ctx context.Context, key string, size int64, multifile int) error

	// RegisterFileHash claims a whole-file hash for key. Exactly one
	// caller wins; losers get the winner's key and registered=false.
	RegisterFileHash(ctx context.Context, hash string, key uint64) (winner uint64, registered bool, err error)

	// UnregisterFileHash releases a claim after a failed ingest. Only
	// the registered owner may release.
	UnregisterFileHash(ctx context.Context, hash string, key uint64) error

	// CommitFileset atomically persists a fileset, its blocksets, and
	// its membership in every package it touched.
	CommitFileset(ctx context.Context, fs *Fileset, blocks []Blockset, pkgKeys []string) error

	GetFileset(ctx context.Context, key uint64) (*Fileset, error)
	GetFilesetBySource(ctx context.Context, sourceKey string) (*Fileset, error)
	GetFilesetByHash(ctx context.Context, hash string) (*Fileset, error)
	GetBlocksets(ctx context.Context, filesetKey uint64) ([]Blockset, error)

	SealRootPackage(ctx context.Context, sealed pack.SealedPackage) error
	GetRootPackage(ctx context.Context, key string) (*RootPackage, error)
	ListRootPackages(ctx context.Context) ([]RootPackage, error)

	// PackageFilesets lists the fileset keys still referencing a
	// package. Garbage collection removes packages this returns empty
	// for.
	PackageFilesets(ctx context.Context, pkgKey string) ([]uint64, error)

	// DeleteFileset removes a fileset and all its metadata. Callers
	// must enforce the shadow rules first.
	DeleteFileset(ctx context.Context, fs *Fileset) error
	RemoveRootPackage(ctx context.Context, key string) error
}

type metaDriver func(uri string) (MetaStore, error)

var metaDrivers = map[string]metaDriver{}

func registerMetaDriver(scheme string, driver metaDriver) {
	metaDrivers[scheme] = driver
}

// NewMetaStore opens a metadata store by URI, e.g.
// redis://127.0.0.1:6379/1 or mem://.
func NewMetaStore(uri string) (MetaStore, error) {
	pos := strings.Index(uri, "://")
	if pos < 0 {
		return nil, fmt.Errorf("invalid meta uri %q", uri)
	}
	driver, ok := metaDrivers[uri[:pos]]
	if !ok {
		return nil, fmt.Errorf("unknown meta driver %q", uri[:pos])
	}
	return driver(uri)
}
