package lrtrie

import (
	"context"
	"fmt"

	"github.com/lrmpt/lrmpt/pkg/core/leftright"
	"github.com/lrmpt/lrmpt/pkg/core/oplog"
	"github.com/lrmpt/lrmpt/pkg/util"
)

// KeyValue is a key-value pair for WriteHandle.Extend.
type KeyValue = oplog.KeyValue

// ReadHandle is a reader of the published trie version. It must not be
// shared between goroutines.
type ReadHandle struct {
	h *leftright.ReadHandle[*copyTrie]
}

// ReadGuard is a consistent view of a single published version. It must be
// released as soon as possible because it delays publishing.
type ReadGuard struct {
	g *leftright.ReadGuard[*copyTrie]
}

// Enter pins the current version until the guard is released.
func (r *ReadHandle) Enter() (*ReadGuard, error) {
	g, err := r.h.Enter()
	if err != nil {
		return nil, err
	}
	return &ReadGuard{g: g}, nil
}

// Get returns the value stored for the key. The second result is false if
// there is no such key.
func (r *ReadHandle) Get(key []byte) ([]byte, bool, error) {
	g, err := r.Enter()
	if err != nil {
		return nil, false, err
	}
	defer g.Release()
	return g.Get(key)
}

// Has checks whether the key is present.
func (r *ReadHandle) Has(key []byte) (bool, error) {
	_, ok, err := r.Get(key)
	return ok, err
}

// RootHash returns the root hash of the current version, the zero hash
// means an empty trie.
func (r *ReadHandle) RootHash() (util.Uint256, error) {
	g, err := r.Enter()
	if err != nil {
		return util.Uint256{}, err
	}
	defer g.Release()
	return g.RootHash(), nil
}

// GetProof returns the inclusion or absence proof for the key in the
// current version.
func (r *ReadHandle) GetProof(key []byte) ([][]byte, error) {
	g, err := r.Enter()
	if err != nil {
		return nil, err
	}
	defer g.Release()
	return g.GetProof(key)
}

// Version returns the current version number.
func (r *ReadHandle) Version() (uint64, error) {
	g, err := r.Enter()
	if err != nil {
		return 0, err
	}
	defer g.Release()
	return g.Version(), nil
}

// Len returns the number of keys in the current version.
func (r *ReadHandle) Len() (int, error) {
	g, err := r.Enter()
	if err != nil {
		return 0, err
	}
	defer g.Release()
	return g.Len()
}

// IsEmpty checks whether the current version has no keys.
func (r *ReadHandle) IsEmpty() (bool, error) {
	g, err := r.Enter()
	if err != nil {
		return false, err
	}
	defer g.Release()
	return g.IsEmpty(), nil
}

// Iterate calls f for every pair of the current version in ascending key
// order until f returns false. The version stays pinned for the whole
// iteration, so f should be fast.
func (r *ReadHandle) Iterate(f func(key, value []byte) bool) error {
	g, err := r.Enter()
	if err != nil {
		return err
	}
	defer g.Release()
	return g.Iterate(f)
}

// Clone returns a new handle for another goroutine.
func (r *ReadHandle) Clone() *ReadHandle {
	return &ReadHandle{h: r.h.Clone()}
}

// Close closes the handle.
func (r *ReadHandle) Close() {
	r.h.Close()
}

// Get returns the value stored for the key.
func (g *ReadGuard) Get(key []byte) ([]byte, bool, error) {
	return get(g.g.Copy().trie, key)
}

// Has checks whether the key is present.
func (g *ReadGuard) Has(key []byte) (bool, error) {
	_, ok, err := g.Get(key)
	return ok, err
}

// RootHash returns the root hash of the pinned version.
func (g *ReadGuard) RootHash() util.Uint256 {
	return g.g.Copy().trie.StateRoot()
}

// GetProof returns the inclusion or absence proof for the key.
func (g *ReadGuard) GetProof(key []byte) ([][]byte, error) {
	return g.g.Copy().trie.GetProof(key)
}

// Version returns the number of the pinned version.
func (g *ReadGuard) Version() uint64 {
	return g.g.Copy().version
}

// Len returns the number of keys in the pinned version. It walks the
// whole trie.
func (g *ReadGuard) Len() (int, error) {
	return g.g.Copy().trie.Count()
}

// IsEmpty checks whether the pinned version has no keys.
func (g *ReadGuard) IsEmpty() bool {
	return g.RootHash().IsZero()
}

// Iterate calls f for every pair of the pinned version in ascending key
// order until f returns false. Key and value must not be retained by f.
func (g *ReadGuard) Iterate(f func(key, value []byte) bool) error {
	return g.g.Copy().trie.Traverse(f)
}

// Release unpins the version.
func (g *ReadGuard) Release() {
	g.g.Release()
}

// WriteHandle is the exclusive writer. Changes are visible through the
// handle at once and to readers after Publish. It must be finished with
// Publish or Abort.
type WriteHandle struct {
	w *leftright.WriteHandle[*copyTrie]
}

// Insert puts the value for the key. An empty value is a valid value.
func (w *WriteHandle) Insert(key, value []byte) error {
	return w.w.Append(oplog.NewInsert(key, value))
}

// Remove deletes the key, removing a missing key is not an error.
func (w *WriteHandle) Remove(key []byte) error {
	return w.w.Append(oplog.NewRemove(key))
}

// Extend applies all pairs at once, pairs with Remove set delete the key.
// If any of them can't be applied, none is. Later pairs win over earlier
// ones with the same key.
func (w *WriteHandle) Extend(kvs []KeyValue) error {
	if len(kvs) > oplog.MaxBatchSize {
		return fmt.Errorf("batch is too big: %d", len(kvs))
	}
	return w.w.Append(oplog.NewExtend(kvs))
}

// Get returns the value for the key including unpublished changes.
func (w *WriteHandle) Get(key []byte) ([]byte, bool, error) {
	if w.w.Done() {
		return nil, false, leftright.ErrHandleClosed
	}
	return get(w.w.Back().trie, key)
}

// RootHash returns the root hash including unpublished changes.
func (w *WriteHandle) RootHash() (util.Uint256, error) {
	if w.w.Done() {
		return util.Uint256{}, leftright.ErrHandleClosed
	}
	return w.w.Back().trie.StateRoot(), nil
}

// Pending returns the number of unpublished operations.
func (w *WriteHandle) Pending() int {
	if w.w.Done() {
		return 0
	}
	return w.w.Pending()
}

// Publish persists the changes and makes them visible to readers. It
// waits for readers of the previous version, see leftright.WriteHandle.
func (w *WriteHandle) Publish(ctx context.Context) error {
	return w.w.Publish(ctx)
}

// Abort drops unpublished changes and releases the write access.
func (w *WriteHandle) Abort() error {
	return w.w.Abort()
}
