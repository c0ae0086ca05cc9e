package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudpack/packstore/pkg/codec"
	"github.com/cloudpack/packstore/pkg/pack"
)

// Engine is the package store: content-defined chunking, dedup,
// compress-then-encrypt encoding, and category-sharded packages, all
// coordinated through one MetaStore.
type Engine struct {
	conf    Config
	meta    MetaStore
	backend pack.BlobBackend
	writer  *pack.Writer
	reader  *pack.Reader
	key     []byte
	codec   *codec.BlockCodec

	// decode codecs by cipher, built lazily so blocks written under an
	// earlier encryption setting stay readable
	decMu     sync.Mutex
	decCodecs map[codec.EncryptionType]*codec.BlockCodec
}

func New(ctx context.Context, conf Config, meta MetaStore, backend pack.BlobBackend) (*Engine, error) {
	if err := conf.Sanitize(); err != nil {
		return nil, err
	}

	format, err := meta.LoadFormat(ctx)
	if errors.Is(err, ErrNotFound) {
		salt, serr := codec.NewKDFSalt()
		if serr != nil {
			return nil, serr
		}
		format = &StoreFormat{
			Version: 1,
			UUID:    uuid.New().String(),
			KDFSalt: hex.EncodeToString(salt),
			Created: time.Now(),
		}
		if err := meta.PersistFormat(ctx, format); err != nil {
			return nil, fmt.Errorf("failed to persist store format: %w", err)
		}
		logger.Infof("initialized store %s, format version %d", format.UUID, format.Version)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load store format: %w", err)
	}

	salt, err := hex.DecodeString(format.KDFSalt)
	if err != nil {
		return nil, fmt.Errorf("corrupt kdf salt in store format: %w", err)
	}
	key, err := codec.DeriveKey(conf.Key, salt)
	if err != nil {
		return nil, err
	}
	bc, err := codec.NewBlockCodec(conf.Compression, conf.Encryption, key)
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		conf:      conf,
		meta:      meta,
		backend:   backend,
		reader:    pack.NewReader(backend),
		key:       key,
		codec:     bc,
		decCodecs: make(map[codec.EncryptionType]*codec.BlockCodec),
	}
	eng.writer = pack.NewWriter(backend, meta, conf.PackCeiling)
	return eng, nil
}

func (e *Engine) codecFor(t codec.EncryptionType) (*codec.BlockCodec, error) {
	e.decMu.Lock()
	defer e.decMu.Unlock()
	if c, ok := e.decCodecs[t]; ok {
		return c, nil
	}
	c, err := codec.NewBlockCodec("none", t.String(), e.key)
	if err != nil {
		return nil, err
	}
	e.decCodecs[t] = c
	return c, nil
}

// Close flushes open packages and shuts the metadata store down.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.writer.Flush(ctx); err != nil {
		return err
	}
	return e.meta.Shutdown()
}

// Meta exposes the metadata store for read-only inspection (stat
// commands, tests).
func (e *Engine) Meta() MetaStore { return e.meta }
