/*
Package lrtrie provides a Merkle-Patricia trie key-value store that can be
read without locking while a single writer prepares the next version.

Readers use ReadHandle (one per goroutine, see ReadHandle.Clone) and never
wait. Changes made through a WriteHandle become visible to readers at
once when published.
*/
package lrtrie

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lrmpt/lrmpt/pkg/config"
	"github.com/lrmpt/lrmpt/pkg/core/leftright"
	"github.com/lrmpt/lrmpt/pkg/core/mpt"
	"github.com/lrmpt/lrmpt/pkg/core/oplog"
	"github.com/lrmpt/lrmpt/pkg/core/storage"
	"github.com/lrmpt/lrmpt/pkg/crypto/hash"
	"github.com/lrmpt/lrmpt/pkg/io"
	"github.com/lrmpt/lrmpt/pkg/util"
	"go.uber.org/zap"
)

// storageVersion is the version of the on-disk data layout.
const storageVersion = "0.2"

var (
	// ErrIncompatibleStorage is returned when the store was created by an
	// incompatible version or with another hash function.
	ErrIncompatibleStorage = errors.New("incompatible storage")
	// ErrUnknownVersion is returned for versions that were never published.
	ErrUnknownVersion = errors.New("unknown version")
)

// Trie is a split-copy Merkle-Patricia trie. It is safe for concurrent use.
type Trie struct {
	core   *leftright.Core[*copyTrie]
	store  storage.Store
	hasher hash.Func
	cache  *mpt.NodeCache
}

// New creates a Trie over the given store. If the store contains
// previously published versions, the trie starts from the latest one.
func New(store storage.Store, cfg config.Trie, log *zap.Logger) (*Trie, error) {
	if log == nil {
		log = zap.NewNop()
	}
	h, hashName, err := hash.ByName(cfg.Hash)
	if err != nil {
		return nil, err
	}
	policy, err := leftright.ParseWritePolicy(cfg.WritePolicy)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(store, hashName); err != nil {
		return nil, err
	}
	version, root, err := loadLatest(store)
	if err != nil {
		return nil, err
	}

	var cache *mpt.NodeCache
	if cfg.NodeCacheSize > 0 {
		cache, err = mpt.NewNodeCache(cfg.NodeCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create node cache: %w", err)
		}
	}
	mptCfg := mpt.Config{
		Store:  store,
		Hasher: h,
		Cache:  cache,
	}
	left := &copyTrie{trie: mpt.NewTrie(mpt.RootNode(root), mptCfg), version: version}
	right := &copyTrie{trie: mpt.NewTrie(mpt.RootNode(root), mptCfg), version: version}

	// The root node must be present, everything else is checked lazily.
	if _, err := left.trie.Get(nil); err != nil && !errors.Is(err, mpt.ErrNotFound) {
		return nil, fmt.Errorf("failed to load root %s: %w", root.StringBE(), err)
	}

	log.Info("trie is ready",
		zap.Uint64("version", version),
		zap.String("root", root.StringBE()),
		zap.String("hash", hashName),
		zap.Stringer("policy", policy),
		zap.Int("cache", cfg.NodeCacheSize))
	return &Trie{
		core: leftright.New(left, right,
			leftright.WithLogger(log),
			leftright.WithWritePolicy(policy)),
		store:  store,
		hasher: h,
		cache:  cache,
	}, nil
}

func checkVersion(store storage.Store, hashName string) error {
	want := storageVersion + "/" + hashName
	v, err := store.Get(storage.SYSVersion.Bytes())
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		if err := store.Put(storage.SYSVersion.Bytes(), []byte(want)); err != nil {
			return fmt.Errorf("failed to store version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to get storage version: %w", err)
	case string(v) != want:
		return fmt.Errorf("%w: %s, expected %s", ErrIncompatibleStorage, v, want)
	}
	return nil
}

// loadLatest returns the latest published version and its root. An empty
// store has version 0 with an empty trie.
func loadLatest(store storage.Store) (uint64, util.Uint256, error) {
	var (
		version uint64
		data    []byte
	)
	store.Seek(storage.SeekRange{
		Prefix:    storage.DataMPTAux.Bytes(),
		Backwards: true,
	}, func(k, v []byte) bool {
		if len(k) != 9 {
			return true
		}
		version = binary.BigEndian.Uint64(k[1:])
		data = bytes.Clone(v)
		return false
	})
	if version == 0 {
		return 0, util.Uint256{}, nil
	}
	root, err := util.Uint256DecodeBytesBE(data)
	if err != nil {
		return 0, util.Uint256{}, fmt.Errorf("bad root of version %d: %w", version, err)
	}
	return version, root, nil
}

// Reader returns a new read handle. It must be closed after use.
func (t *Trie) Reader() *ReadHandle {
	return &ReadHandle{h: t.core.Reader()}
}

// Write returns the exclusive write handle. Depending on the write policy
// it either waits for the current writer to finish or returns
// leftright.ErrWriterBusy.
func (t *Trie) Write(ctx context.Context) (*WriteHandle, error) {
	w, err := t.core.Write(ctx)
	if err != nil {
		return nil, err
	}
	return &WriteHandle{w: w}, nil
}

// TryWrite returns the exclusive write handle or leftright.ErrWriterBusy
// if there is another writer.
func (t *Trie) TryWrite() (*WriteHandle, error) {
	w, err := t.core.TryWrite()
	if err != nil {
		return nil, err
	}
	return &WriteHandle{w: w}, nil
}

// Readers returns the number of open read handles.
func (t *Trie) Readers() int {
	return t.core.Readers()
}

// Hasher returns the node hash function of t.
func (t *Trie) Hasher() hash.Func {
	return t.hasher
}

// VerifyProof checks proof against root using the hash function of t. A
// nil value means that the key must be absent.
func (t *Trie) VerifyProof(root util.Uint256, key, value []byte, proof [][]byte) bool {
	return mpt.CheckProof(t.hasher, root, key, value, proof)
}

// VerifyProof checks proof against root using the default hash function. A
// nil value means that the key must be absent.
func VerifyProof(root util.Uint256, key, value []byte, proof [][]byte) bool {
	return mpt.CheckProof(hash.DoubleSha256, root, key, value, proof)
}

// Version returns the latest published version. Every publish applying
// some operations increments it, version 0 is the initial empty trie.
func (t *Trie) Version() (uint64, error) {
	r := t.Reader()
	defer r.Close()
	return r.Version()
}

// RootAt returns the root hash of the given published version.
func (t *Trie) RootAt(version uint64) (util.Uint256, error) {
	if version == 0 {
		return util.Uint256{}, nil
	}
	data, err := t.store.Get(versionKey(storage.DataMPTAux, version))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return util.Uint256{}, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
	if err != nil {
		return util.Uint256{}, fmt.Errorf("failed to get root of version %d: %w", version, err)
	}
	return util.Uint256DecodeBytesBE(data)
}

// GetAt returns the value stored for the key in the given published
// version.
func (t *Trie) GetAt(version uint64, key []byte) ([]byte, bool, error) {
	tr, err := t.trieAt(version)
	if err != nil {
		return nil, false, err
	}
	return get(tr, key)
}

func (t *Trie) trieAt(version uint64) (*mpt.Trie, error) {
	root, err := t.RootAt(version)
	if err != nil {
		return nil, err
	}
	return t.trieWithRoot(root), nil
}

func (t *Trie) trieWithRoot(root util.Uint256) *mpt.Trie {
	return mpt.NewTrie(mpt.RootNode(root), mpt.Config{
		Store:  t.store,
		Hasher: t.hasher,
		Cache:  t.cache,
	})
}

// seekVersions returns version data stored under the given prefix starting
// from the given version. The store is not accessed by callers while
// seeking.
func (t *Trie) seekVersions(p storage.KeyPrefix, from uint64) ([]uint64, [][]byte) {
	var (
		versions []uint64
		values   [][]byte
		start    = make([]byte, 8)
	)
	binary.BigEndian.PutUint64(start, from)
	t.store.Seek(storage.SeekRange{Prefix: p.Bytes(), Start: start}, func(k, v []byte) bool {
		if len(k) == 9 {
			versions = append(versions, binary.BigEndian.Uint64(k[1:]))
			values = append(values, bytes.Clone(v))
		}
		return true
	})
	return versions, values
}

// History calls f for every published version starting from the given one
// in ascending order until f returns false. It passes operations applied
// by the version, they must not be modified.
func (t *Trie) History(from uint64, f func(version uint64, ops []oplog.Operation) bool) error {
	versions, logs := t.seekVersions(storage.DataMPTLog, from)
	for i := range versions {
		var l oplog.Log
		r := io.NewBinReaderFromBuf(logs[i])
		l.DecodeBinary(r)
		if r.Err != nil {
			return fmt.Errorf("bad operations of version %d: %w", versions[i], r.Err)
		}
		if !f(versions[i], l.Ops()) {
			return nil
		}
	}
	return nil
}

// VersionedValue is a value of some key in a published version. Nil Value
// means that the key was removed.
type VersionedValue struct {
	Version uint64
	Value   []byte
}

// ValueHistory returns all changes of the key value over published
// versions in ascending order.
func (t *Trie) ValueHistory(key []byte) ([]VersionedValue, error) {
	var (
		res     []VersionedValue
		prev    []byte
		present bool
	)
	versions, roots := t.seekVersions(storage.DataMPTAux, 1)
	for i, version := range versions {
		root, err := util.Uint256DecodeBytesBE(roots[i])
		if err != nil {
			return nil, fmt.Errorf("bad root of version %d: %w", version, err)
		}
		val, ok, err := get(t.trieWithRoot(root), key)
		if err != nil {
			return nil, fmt.Errorf("version %d: %w", version, err)
		}
		if ok != present || (ok && !bytes.Equal(val, prev)) {
			res = append(res, VersionedValue{Version: version, Value: val})
		}
		prev, present = val, ok
	}
	return res, nil
}

func get(tr *mpt.Trie, key []byte) ([]byte, bool, error) {
	v, err := tr.Get(key)
	if errors.Is(err, mpt.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
