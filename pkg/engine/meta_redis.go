package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cloudpack/packstore/pkg/pack"
)

func init() {
	registerMetaDriver("redis", newRedisMeta)
}

// redisMeta keeps all metadata in Redis. Record layout:
//
//	ps:format            store format, JSON
//	ps:next_fileset      fileset key counter
//	ps:next_pkg:{cat}    per-category package index counter
//	ps:hash              hash map: whole-file hash -> fileset key
//	ps:src               hash map: source key -> fileset key
//	ps:fs:{key}          fileset, JSON
//	ps:bs:{key}          blocksets of one fileset, JSON
//	ps:pkg:{pkgkey}      root package, JSON
//	ps:pkgset            set of all package keys
//	ps:pkgfs:{pkgkey}    set of fileset keys referencing the package
//	ps:fspkg:{key}       set of package keys a fileset lives in
type redisMeta struct {
	rdb *redis.Client
}

func newRedisMeta(uri string) (MetaStore, error) {
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis uri: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect redis %s: %w", opt.Addr, err)
	}
	logger.Infof("connected meta store redis://%s/%d", opt.Addr, opt.DB)
	return &redisMeta{rdb: rdb}, nil
}

func (m *redisMeta) Name() string { return "redis" }

func (m *redisMeta) Shutdown() error { return m.rdb.Close() }

const (
	keyFormat      = "ps:format"
	keyNextFileset = "ps:next_fileset"
	keyHashIndex   = "ps:hash"
	keyHashRefs    = "ps:hashref" // shadow count per whole-file hash
	keySourceIndex = "ps:src"
	keyPackageSet  = "ps:pkgset"
)

func filesetKey(key uint64) string     { return "ps:fs:" + strconv.FormatUint(key, 10) }
func blocksetKey(key uint64) string    { return "ps:bs:" + strconv.FormatUint(key, 10) }
func packageRowKey(key string) string  { return "ps:pkg:" + key }
func packageFsKey(key string) string   { return "ps:pkgfs:" + key }
func filesetPkgKey(key uint64) string  { return "ps:fspkg:" + strconv.FormatUint(key, 10) }
func nextPkgKey(category string) string { return "ps:next_pkg:" + category }

func (m *redisMeta) LoadFormat(ctx context.Context) (*StoreFormat, error) {
	val, err := m.rdb.Get(ctx, keyFormat).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	format := &StoreFormat{}
	if err := json.Unmarshal(val, format); err != nil {
		return nil, fmt.Errorf("corrupt store format: %w", err)
	}
	return format, nil
}

func (m *redisMeta) PersistFormat(ctx context.Context, format *StoreFormat) error {
	buf, err := json.Marshal(format)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, keyFormat, buf, 0).Err()
}

func (m *redisMeta) NextFilesetKey(ctx context.Context) (uint64, error) {
	key, err := m.rdb.Incr(ctx, keyNextFileset).Result()
	if err != nil {
		return 0, err
	}
	return uint64(key), nil
}

func (m *redisMeta) NextPackageIndex(ctx context.Context, category string) (uint64, error) {
	index, err := m.rdb.Incr(ctx, nextPkgKey(category)).Result()
	if err != nil {
		return 0, err
	}
	now := time.Now()
	row := RootPackage{
		Key:      pack.PackageKey(category, uint64(index)),
		Category: category,
		Index:    uint64(index),
		Created:  now,
		Updated:  now,
	}
	buf, err := json.Marshal(&row)
	if err != nil {
		return 0, err
	}
	_, err = m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, packageRowKey(row.Key), buf, 0)
		pipe.SAdd(ctx, keyPackageSet, row.Key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(index), nil
}

func (m *redisMeta) RegisterFileHash(ctx context.Context, hash string, key uint64) (uint64, bool, error) {
	ok, err := m.rdb.HSetNX(ctx, keyHashIndex, hash, key).Result()
	if err != nil {
		return 0, false, err
	}
	if ok {
		return key, true, nil
	}
	val, err := m.rdb.HGet(ctx, keyHashIndex, hash).Result()
	if err == redis.Nil {
		// the winner released the claim between our two calls
		return 0, false, ErrConflict
	} else if err != nil {
		return 0, false, err
	}
	winner, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt hash index entry %q: %w", val, err)
	}
	return winner, false, nil
}

func (m *redisMeta) UnregisterFileHash(ctx context.Context, hash string, key uint64) error {
	return m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.HGet(ctx, keyHashIndex, hash).Result()
		if err == redis.Nil {
			return nil
		} else if err != nil {
			return err
		}
		if val != strconv.FormatUint(key, 10) {
			return nil // someone else owns the claim now
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, keyHashIndex, hash)
			return nil
		})
		return err
	}, keyHashIndex)
}

func (m *redisMeta) CommitFileset(ctx context.Context, fs *Fileset, blocks []Blockset, pkgKeys []string) error {
	fsBuf, err := json.Marshal(fs)
	if err != nil {
		return err
	}
	bsBuf, err := json.Marshal(blocks)
	if err != nil {
		return err
	}
	_, err = m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, filesetKey(fs.Key), fsBuf, 0)
		pipe.HSet(ctx, keySourceIndex, fs.SourceKey, fs.Key)
		if fs.IsShadow {
			pipe.HIncrBy(ctx, keyHashRefs, fs.Hash, 1)
		}
		if len(blocks) > 0 {
			pipe.Set(ctx, blocksetKey(fs.Key), bsBuf, 0)
		}
		for _, pkgKey := range pkgKeys {
			pipe.SAdd(ctx, packageFsKey(pkgKey), fs.Key)
			pipe.SAdd(ctx, filesetPkgKey(fs.Key), pkgKey)
		}
		return nil
	})
	return err
}

func (m *redisMeta) getFileset(ctx context.Context, redisKey string) (*Fileset, error) {
	val, err := m.rdb.Get(ctx, redisKey).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	fs := &Fileset{}
	if err := json.Unmarshal(val, fs); err != nil {
		return nil, fmt.Errorf("corrupt fileset record %s: %w", redisKey, err)
	}
	return fs, nil
}

func (m *redisMeta) GetFileset(ctx context.Context, key uint64) (*Fileset, error) {
	return m.getFileset(ctx, filesetKey(key))
}

func (m *redisMeta) GetFilesetBySource(ctx context.Context, sourceKey string) (*Fileset, error) {
	val, err := m.rdb.HGet(ctx, keySourceIndex, sourceKey).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	key, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt source index entry %q: %w", val, err)
	}
	return m.GetFileset(ctx, key)
}

func (m *redisMeta) GetFilesetByHash(ctx context.Context, hash string) (*Fileset, error) {
	val, err := m.rdb.HGet(ctx, keyHashIndex, hash).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	key, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt hash index entry %q: %w", val, err)
	}
	return m.GetFileset(ctx, key)
}

func (m *redisMeta) GetBlocksets(ctx context.Context, key uint64) ([]Blockset, error) {
	val, err := m.rdb.Get(ctx, blocksetKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var blocks []Blockset
	if err := json.Unmarshal(val, &blocks); err != nil {
		return nil, fmt.Errorf("corrupt blockset record for fileset %d: %w", key, err)
	}
	return blocks, nil
}

// mutateRootPackage rewrites one package row under WATCH so concurrent
// writers never clobber each other's fields.
func (m *redisMeta) mutateRootPackage(ctx context.Context, key string, mutate func(*RootPackage)) error {
	rowKey := packageRowKey(key)
	return m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, rowKey).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		row := RootPackage{}
		if err := json.Unmarshal(val, &row); err != nil {
			return fmt.Errorf("corrupt package record %s: %w", key, err)
		}
		mutate(&row)
		row.Updated = time.Now()
		buf, err := json.Marshal(&row)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rowKey, buf, 0)
			return nil
		})
		return err
	}, rowKey)
}

func (m *redisMeta) UpdateRootPackage(ctx context.Context, key string, size int64, multifile int) error {
	return m.mutateRootPackage(ctx, key, func(row *RootPackage) {
		row.Size = size
		row.Multifile = multifile
	})
}

func (m *redisMeta) SealRootPackage(ctx context.Context, sealed pack.SealedPackage) error {
	return m.mutateRootPackage(ctx, sealed.Key, func(row *RootPackage) {
		row.Size = sealed.Size
		row.Multifile = sealed.Multifile
		row.CRC = sealed.CRC
		row.Sealed = true
	})
}

func (m *redisMeta) GetRootPackage(ctx context.Context, key string) (*RootPackage, error) {
	val, err := m.rdb.Get(ctx, packageRowKey(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	row := &RootPackage{}
	if err := json.Unmarshal(val, row); err != nil {
		return nil, fmt.Errorf("corrupt package record %s: %w", key, err)
	}
	return row, nil
}

func (m *redisMeta) ListRootPackages(ctx context.Context) ([]RootPackage, error) {
	keys, err := m.rdb.SMembers(ctx, keyPackageSet).Result()
	if err != nil {
		return nil, err
	}
	rows := make([]RootPackage, 0, len(keys))
	for _, key := range keys {
		row, err := m.GetRootPackage(ctx, key)
		if err == ErrNotFound {
			continue
		} else if err != nil {
			return nil, err
		}
		rows = append(rows, *row)
	}
	return rows, nil
}

func (m *redisMeta) PackageFilesets(ctx context.Context, pkgKey string) ([]uint64, error) {
	vals, err := m.rdb.SMembers(ctx, packageFsKey(pkgKey)).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]uint64, 0, len(vals))
	for _, val := range vals {
		key, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt package membership entry %q: %w", val, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (m *redisMeta) DeleteFileset(ctx context.Context, fs *Fileset) error {
	if !fs.IsShadow {
		refs, err := m.rdb.HGet(ctx, keyHashRefs, fs.Hash).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("fileset %d still has %d shadows: %w", fs.Key, refs, ErrConflict)
		}
	}
	pkgKeys, err := m.rdb.SMembers(ctx, filesetPkgKey(fs.Key)).Result()
	if err != nil {
		return err
	}
	_, err = m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, filesetKey(fs.Key), blocksetKey(fs.Key), filesetPkgKey(fs.Key))
		pipe.HDel(ctx, keySourceIndex, fs.SourceKey)
		if fs.IsShadow {
			pipe.HIncrBy(ctx, keyHashRefs, fs.Hash, -1)
		} else {
			pipe.HDel(ctx, keyHashIndex, fs.Hash)
			pipe.HDel(ctx, keyHashRefs, fs.Hash)
		}
		for _, pkgKey := range pkgKeys {
			pipe.SRem(ctx, packageFsKey(pkgKey), fs.Key)
		}
		return nil
	})
	return err
}

func (m *redisMeta) RemoveRootPackage(ctx context.Context, key string) error {
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, packageRowKey(key), packageFsKey(key))
		pipe.SRem(ctx, keyPackageSet, key)
		return nil
	})
	return err
}
