package mpt

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/lrmpt/lrmpt/pkg/core/storage"
	"github.com/lrmpt/lrmpt/pkg/crypto/hash"
	"github.com/lrmpt/lrmpt/pkg/io"
	"github.com/lrmpt/lrmpt/pkg/util"
)

// Config is a set of Trie parameters.
type Config struct {
	// Store keeps flushed nodes. It's shared between tries.
	Store storage.Store
	// Hasher is used to calculate node hashes, hash.DoubleSha256 is used
	// if not set.
	Hasher hash.Func
	// Cache is an optional decoded nodes cache.
	Cache *NodeCache
}

// Trie is an MPT trie storing all key-value pairs.
//
// Trie is not safe for concurrent modification. Get, GetProof and StateRoot
// of a flushed Trie do not modify any state and can be called concurrently.
type Trie struct {
	Store storage.Store

	hasher hash.Func
	cache  *NodeCache
	root   Node
}

var (
	// ErrNotFound is returned when requested trie item is missing.
	ErrNotFound = errors.New("item not found")
	// ErrNodeNotFound is returned when a node referenced by some hash is
	// missing from the store.
	ErrNodeNotFound = errors.New("node not found")
	// ErrKeyTooBig is returned for keys longer than MaxKeyLength.
	ErrKeyTooBig = errors.New("key is too big")
	// ErrValueTooBig is returned for values longer than MaxValueLength.
	ErrValueTooBig = errors.New("value is too big")
)

// NewTrie returns new MPT trie. Nil root means an empty trie.
func NewTrie(root Node, cfg Config) *Trie {
	if root == nil {
		root = EmptyNode{}
	}
	if cfg.Hasher == nil {
		cfg.Hasher = hash.DoubleSha256
	}

	return &Trie{
		Store:  cfg.Store,
		hasher: cfg.Hasher,
		cache:  cfg.Cache,
		root:   root,
	}
}

// RootNode returns a node referencing the given root hash, the zero hash
// denotes an empty trie.
func RootNode(h util.Uint256) Node {
	if h.IsZero() {
		return EmptyNode{}
	}
	return NewHashNode(h)
}

// Hasher returns the hash function used by t.
func (t *Trie) Hasher() hash.Func {
	return t.hasher
}

// Reset replaces the whole trie contents with the flushed trie identified
// by the given root hash.
func (t *Trie) Reset(root util.Uint256) {
	t.root = RootNode(root)
}

// Get returns value for the provided key in t.
func (t *Trie) Get(key []byte) ([]byte, error) {
	if len(key) > MaxKeyLength {
		return nil, ErrKeyTooBig
	}
	path := toNibbles(key)
	return t.getWithPath(t.root, path)
}

// getWithPath returns value the provided path in a subtrie rooting in curr.
func (t *Trie) getWithPath(curr Node, path []byte) ([]byte, error) {
	switch n := curr.(type) {
	case *LeafNode:
		if len(path) == 0 {
			return copySlice(n.value), nil
		}
	case *BranchNode:
		i, path := splitPath(path)
		return t.getWithPath(n.Children[i], path)
	case *HashNode:
		r, err := t.getFromStore(n.hash)
		if err != nil {
			return nil, err
		}
		return t.getWithPath(r, path)
	case *ExtensionNode:
		if bytes.HasPrefix(path, n.key) {
			return t.getWithPath(n.next, path[len(n.key):])
		}
	case EmptyNode:
	default:
		panic("invalid MPT node type")
	}
	return nil, ErrNotFound
}

func checkPath(path, value []byte) error {
	if len(path) > maxPathLength {
		return ErrKeyTooBig
	} else if len(value) > MaxValueLength {
		return ErrValueTooBig
	}
	return nil
}

// copyValue copies v, a nil value is stored as an empty one.
func copyValue(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return copySlice(v)
}

// Put puts key-value pair in t. An empty value is a valid value distinct
// from the missing one.
func (t *Trie) Put(key, value []byte) error {
	path := toNibbles(key)
	if err := checkPath(path, value); err != nil {
		return err
	}
	r, err := t.putIntoNode(t.root, path, NewLeafNode(copyValue(value)))
	if err != nil {
		return err
	}
	t.root = r
	return nil
}

// putIntoLeaf puts val to trie if current node is a Leaf.
// It returns Node if curr needs to be replaced and error if any.
func (t *Trie) putIntoLeaf(curr *LeafNode, path []byte, val Node) (Node, error) {
	if len(path) == 0 {
		return val, nil
	}

	b := NewBranchNode()
	b.Children[path[0]] = newSubTrie(path[1:], val)
	b.Children[lastChild] = curr
	return b, nil
}

// putIntoBranch puts val to trie if current node is a Branch.
// It returns Node if curr needs to be replaced and error if any.
func (t *Trie) putIntoBranch(curr *BranchNode, path []byte, val Node) (Node, error) {
	i, path := splitPath(path)
	r, err := t.putIntoNode(curr.Children[i], path, val)
	if err != nil {
		return nil, err
	}
	b := curr.clone()
	b.Children[i] = r
	return b, nil
}

// putIntoExtension puts val to trie if current node is an Extension.
// It returns Node if curr needs to be replaced and error if any.
func (t *Trie) putIntoExtension(curr *ExtensionNode, path []byte, val Node) (Node, error) {
	if bytes.HasPrefix(path, curr.key) {
		r, err := t.putIntoNode(curr.next, path[len(curr.key):], val)
		if err != nil {
			return nil, err
		}
		return NewExtensionNode(curr.key, r), nil
	}

	pref := lcp(curr.key, path)
	lp := len(pref)
	keyTail := curr.key[lp:]
	pathTail := path[lp:]

	s1 := newSubTrie(keyTail[1:], curr.next)
	b := NewBranchNode()
	b.Children[keyTail[0]] = s1

	i, pathTail := splitPath(pathTail)
	s2 := newSubTrie(pathTail, val)
	b.Children[i] = s2

	if lp > 0 {
		return NewExtensionNode(copySlice(pref), b), nil
	}
	return b, nil
}

// putIntoHash puts val to trie if current node is a HashNode.
// It returns Node if curr needs to be replaced and error if any.
func (t *Trie) putIntoHash(curr *HashNode, path []byte, val Node) (Node, error) {
	result, err := t.getFromStore(curr.hash)
	if err != nil {
		return nil, err
	}
	return t.putIntoNode(result, path, val)
}

// newSubTrie create new trie containing node at provided path.
func newSubTrie(path []byte, val Node) Node {
	if len(path) == 0 {
		return val
	}
	return NewExtensionNode(path, val)
}

func (t *Trie) putIntoNode(curr Node, path []byte, val Node) (Node, error) {
	switch n := curr.(type) {
	case *LeafNode:
		return t.putIntoLeaf(n, path, val)
	case *BranchNode:
		return t.putIntoBranch(n, path, val)
	case *ExtensionNode:
		return t.putIntoExtension(n, path, val)
	case *HashNode:
		return t.putIntoHash(n, path, val)
	case EmptyNode:
		return newSubTrie(path, val), nil
	default:
		panic("invalid MPT node type")
	}
}

// Delete removes key from trie.
// It returns no error on missing key.
func (t *Trie) Delete(key []byte) error {
	if len(key) > MaxKeyLength {
		return ErrKeyTooBig
	}
	path := toNibbles(key)
	r, err := t.deleteFromNode(t.root, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	t.root = r
	return nil
}

func (t *Trie) deleteFromBranch(b *BranchNode, path []byte) (Node, error) {
	i, path := splitPath(path)
	r, err := t.deleteFromNode(b.Children[i], path)
	if err != nil {
		return nil, err
	}
	nb := b.clone()
	nb.Children[i] = r
	var count, index int
	for i := range nb.Children {
		if !isEmpty(nb.Children[i]) {
			index = i
			count++
		}
	}
	switch count {
	case 0:
		return EmptyNode{}, nil
	case 1:
	default:
		return nb, nil
	}
	c := nb.Children[index]
	if h, ok := c.(*HashNode); ok {
		c, err = t.getFromStore(h.hash)
		if err != nil {
			return nil, err
		}
	}
	if index == lastChild {
		return c, nil
	}
	if e, ok := c.(*ExtensionNode); ok {
		key := make([]byte, 0, len(e.key)+1)
		key = append(key, byte(index))
		return NewExtensionNode(append(key, e.key...), e.next), nil
	}

	return NewExtensionNode([]byte{byte(index)}, c), nil
}

func (t *Trie) deleteFromExtension(n *ExtensionNode, path []byte) (Node, error) {
	if !bytes.HasPrefix(path, n.key) {
		return nil, ErrNotFound
	}
	r, err := t.deleteFromNode(n.next, path[len(n.key):])
	if err != nil {
		return nil, err
	}
	switch nxt := r.(type) {
	case *ExtensionNode:
		key := make([]byte, 0, len(n.key)+len(nxt.key))
		key = append(key, n.key...)
		return NewExtensionNode(append(key, nxt.key...), nxt.next), nil
	case EmptyNode:
		return nxt, nil
	default:
		return NewExtensionNode(n.key, r), nil
	}
}

func (t *Trie) deleteFromNode(curr Node, path []byte) (Node, error) {
	switch n := curr.(type) {
	case *LeafNode:
		if len(path) == 0 {
			return EmptyNode{}, nil
		}
		return nil, ErrNotFound
	case *BranchNode:
		return t.deleteFromBranch(n, path)
	case *ExtensionNode:
		return t.deleteFromExtension(n, path)
	case *HashNode:
		newNode, err := t.getFromStore(n.hash)
		if err != nil {
			return nil, err
		}
		return t.deleteFromNode(newNode, path)
	case EmptyNode:
		return nil, ErrNotFound
	default:
		panic("invalid MPT node type")
	}
}

// StateRoot returns root hash of t. The zero hash is returned for an
// empty trie.
func (t *Trie) StateRoot() util.Uint256 {
	if isEmpty(t.root) {
		return util.Uint256{}
	}
	return t.root.Hash(t.hasher)
}

func makeStorageKey(mptKey util.Uint256) []byte {
	return append([]byte{byte(storage.DataMPT)}, mptKey.BytesBE()...)
}

// Flush puts every new node in the trie to the storage with a single
// change set and then collapses the trie into its root hash node. A
// flushed trie is exactly its root hash plus the store.
func (t *Trie) Flush() error {
	return t.FlushWith(nil)
}

// FlushWith is like Flush, but also writes extra entries (nil values
// delete) in the same change set. extra is modified.
func (t *Trie) FlushWith(extra map[string][]byte) error {
	puts := extra
	if puts == nil {
		puts = make(map[string][]byte)
	}
	t.flush(t.root, puts)
	h := t.StateRoot()
	if len(puts) != 0 {
		if err := t.Store.PutChangeSet(puts); err != nil {
			return fmt.Errorf("failed to flush trie: %w", err)
		}
	}
	t.root = RootNode(h)
	return nil
}

func (t *Trie) flush(node Node, puts map[string][]byte) {
	if node.IsFlushed() {
		return
	}
	switch n := node.(type) {
	case *BranchNode:
		for i := range n.Children {
			t.flush(n.Children[i], puts)
		}
	case *ExtensionNode:
		t.flush(n.next, puts)
	}
	puts[string(makeStorageKey(node.Hash(t.hasher)))] = node.Bytes(t.hasher)
}

func (t *Trie) getFromStore(h util.Uint256) (Node, error) {
	if t.cache != nil {
		if n, ok := t.cache.Get(h); ok {
			return n, nil
		}
	}
	data, err := t.Store.Get(makeStorageKey(h))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNodeNotFound, h.StringBE(), err)
	}

	r := io.NewBinReaderFromBuf(data)
	n := DecodeNodeWithType(r)
	if r.Err != nil {
		return nil, fmt.Errorf("failed to decode node %s: %w", h.StringBE(), r.Err)
	}
	fn, ok := n.(flushedNode)
	if !ok {
		return nil, fmt.Errorf("unexpected node type %d stored at %s", n.Type(), h.StringBE())
	}
	fn.setCache(data, h)
	if t.cache != nil {
		t.cache.Add(h, n)
	}
	return n, nil
}
