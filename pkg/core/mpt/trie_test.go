package mpt

import (
	"errors"
	"testing"

	"github.com/lrmpt/lrmpt/pkg/core/storage"
	"github.com/lrmpt/lrmpt/pkg/crypto/hash"
	"github.com/lrmpt/lrmpt/pkg/util"
	"github.com/stretchr/testify/require"
)

func newTestStore() *storage.MemoryStore {
	return storage.NewMemoryStore()
}

func newTestTrie(t *testing.T) *Trie {
	b := NewBranchNode()

	l1 := NewLeafNode([]byte{0xAB, 0xCD})
	b.Children[0] = NewExtensionNode([]byte{0x01}, l1)

	l3 := NewLeafNode([]byte{})
	b.Children[1] = NewExtensionNode([]byte{0x03}, l3)

	l2 := NewLeafNode([]byte{0x22, 0x22})
	b.Children[9] = NewExtensionNode([]byte{0x09}, l2)

	v := NewLeafNode([]byte("hello"))
	h := NewHashNode(v.Hash(hash.DoubleSha256))
	b.Children[10] = NewExtensionNode([]byte{0x0e}, h)

	e := NewExtensionNode(toNibbles([]byte{0xAC}), b)
	tr := NewTrie(e, Config{Store: newTestStore()})

	tr.putToStore(e)
	tr.putToStore(b)
	tr.putToStore(l1)
	tr.putToStore(l2)
	tr.putToStore(l3)
	tr.putToStore(v)
	tr.putToStore(b.Children[0])
	tr.putToStore(b.Children[1])
	tr.putToStore(b.Children[9])
	tr.putToStore(b.Children[10])

	return tr
}

func (tr *Trie) putToStore(n Node) {
	if n.Type() == HashT {
		panic("can't put hash node in trie")
	}
	_ = tr.Store.Put(makeStorageKey(n.Hash(tr.hasher)), n.Bytes(tr.hasher))
}

func (tr *Trie) testHas(t *testing.T, key, value []byte) {
	v, err := tr.Get(key)
	if value == nil {
		require.ErrorIs(t, err, ErrNotFound)
		return
	}
	require.NoError(t, err)
	require.Equal(t, value, v)
}

// isValid checks for 3 invariants:
// - BranchNode contains > 1 children
// - ExtensionNode do not contain another extension node
// - ExtensionNode do not have nil key
// It is used only during testing to catch possible bugs.
func isValid(curr Node) bool {
	switch n := curr.(type) {
	case *BranchNode:
		var count int
		for i := range n.Children {
			if !isValid(n.Children[i]) {
				return false
			}
			if !isEmpty(n.Children[i]) {
				count++
			}
		}
		return count > 1
	case *ExtensionNode:
		_, ok := n.next.(*ExtensionNode)
		return len(n.key) != 0 && !ok && isValid(n.next)
	default:
		return true
	}
}

func randomHash(t *testing.T) util.Uint256 {
	return hash.Sha256([]byte(t.Name()))
}

func TestTrie_PutIntoBranchNode(t *testing.T) {
	check := func(t *testing.T, value []byte) {
		b := NewBranchNode()
		l := NewLeafNode([]byte{0x8})
		b.Children[0x7] = NewHashNode(l.Hash(hash.DoubleSha256))
		b.Children[0x8] = NewHashNode(randomHash(t))
		tr := NewTrie(b, Config{Store: newTestStore()})

		// empty child
		require.NoError(t, tr.Put([]byte{0x66}, value))
		tr.testHas(t, []byte{0x66}, value)
		require.True(t, isValid(tr.root))

		// missing hash
		err := tr.Put([]byte{0x70}, value)
		require.ErrorIs(t, err, ErrNodeNotFound)
		require.True(t, isValid(tr.root))

		// hash is in store
		tr.putToStore(l)
		require.NoError(t, tr.Put([]byte{0x70}, value))
		require.True(t, isValid(tr.root))
	}

	t.Run("non-empty value", func(t *testing.T) {
		check(t, []byte{0x42})
	})
	t.Run("empty value", func(t *testing.T) {
		check(t, []byte{})
	})
}

func TestTrie_PutIntoExtensionNode(t *testing.T) {
	check := func(t *testing.T, value []byte) {
		l := NewLeafNode([]byte{0x11})
		key := []byte{0x12}
		e := NewExtensionNode(toNibbles(key), NewHashNode(l.Hash(hash.DoubleSha256)))
		tr := NewTrie(e, Config{Store: newTestStore()})

		// missing hash
		require.Error(t, tr.Put(key, value))

		tr.putToStore(l)
		require.NoError(t, tr.Put(key, value))
		tr.testHas(t, key, value)
		require.True(t, isValid(tr.root))
	}

	t.Run("non-empty value", func(t *testing.T) {
		check(t, []byte{0x42})
	})
	t.Run("empty value", func(t *testing.T) {
		check(t, []byte{})
	})
}

func TestTrie_Put(t *testing.T) {
	trExp := newTestTrie(t)

	trAct := NewTrie(nil, Config{Store: newTestStore()})
	require.NoError(t, trAct.Put([]byte{0xAC, 0x01}, []byte{0xAB, 0xCD}))
	require.NoError(t, trAct.Put([]byte{0xAC, 0x13}, []byte{}))
	require.NoError(t, trAct.Put([]byte{0xAC, 0x99}, []byte{0x22, 0x22}))
	require.NoError(t, trAct.Put([]byte{0xAC, 0xAE}, []byte("hello")))

	// Note: the exact tries differ because of ("acae":"hello") node is stored as Hash node in test trie.
	require.Equal(t, trExp.root.Hash(trExp.hasher), trAct.root.Hash(trAct.hasher))
	require.True(t, isValid(trAct.root))
}

func TestTrie_PutInvalid(t *testing.T) {
	tr := NewTrie(nil, Config{Store: newTestStore()})
	key, value := []byte("key"), []byte("value")

	// empty key is allowed
	require.NoError(t, tr.Put([]byte{}, value))
	tr.testHas(t, []byte{}, value)

	// big key
	require.ErrorIs(t, tr.Put(make([]byte, MaxKeyLength+1), value), ErrKeyTooBig)

	// big value
	require.ErrorIs(t, tr.Put(key, make([]byte, MaxValueLength+1)), ErrValueTooBig)

	// this is ok though
	require.NoError(t, tr.Put(key, value))
	tr.testHas(t, key, value)
}

func TestTrie_BigPut(t *testing.T) {
	tr := NewTrie(nil, Config{Store: newTestStore()})
	items := []struct{ k, v string }{
		{"item with long key", "value1"},
		{"item with matching prefix", "value2"},
		{"another prefix", "value3"},
		{"another prefix 2", "value4"},
		{"another ", "value5"},
	}

	for i := range items {
		require.NoError(t, tr.Put([]byte(items[i].k), []byte(items[i].v)))
	}

	for i := range items {
		tr.testHas(t, []byte(items[i].k), []byte(items[i].v))
	}

	t.Run("Rewrite", func(t *testing.T) {
		k, v := []byte(items[0].k), []byte{0x01, 0x23}
		require.NoError(t, tr.Put(k, v))
		tr.testHas(t, k, v)
	})

	t.Run("Empty value", func(t *testing.T) {
		k := []byte(items[1].k)
		require.NoError(t, tr.Put(k, []byte{}))
		tr.testHas(t, k, []byte{})
	})

	t.Run("Remove", func(t *testing.T) {
		k := []byte(items[1].k)
		require.NoError(t, tr.Delete(k))
		tr.testHas(t, k, nil)
	})
}

func TestTrie_PutDoesNotModifyOldRoot(t *testing.T) {
	tr := NewTrie(nil, Config{Store: newTestStore()})
	require.NoError(t, tr.Put([]byte{0x12, 0x34}, []byte("a")))
	require.NoError(t, tr.Put([]byte{0x12, 0x35}, []byte("b")))
	old := tr.root
	oldHash := tr.StateRoot()

	require.NoError(t, tr.Put([]byte{0x12, 0x36}, []byte("c")))
	require.NoError(t, tr.Delete([]byte{0x12, 0x34}))

	snapshot := NewTrie(old, Config{Store: tr.Store})
	snapshot.testHas(t, []byte{0x12, 0x34}, []byte("a"))
	snapshot.testHas(t, []byte{0x12, 0x36}, nil)
	require.Equal(t, oldHash, snapshot.StateRoot())
}

func TestTrie_Get(t *testing.T) {
	t.Run("HashNode", func(t *testing.T) {
		tr := newTestTrie(t)
		tr.testHas(t, []byte{0xAC, 0xAE}, []byte("hello"))
	})
	t.Run("UnfoldRoot", func(t *testing.T) {
		tr := newTestTrie(t)
		single := NewTrie(NewHashNode(tr.root.Hash(tr.hasher)), Config{Store: tr.Store})
		single.testHas(t, []byte{0xAC}, nil)
		single.testHas(t, []byte{0xAC, 0x01}, []byte{0xAB, 0xCD})
		single.testHas(t, []byte{0xAC, 0x99}, []byte{0x22, 0x22})
		single.testHas(t, []byte{0xAC, 0xAE}, []byte("hello"))
		single.testHas(t, []byte{0xAC, 0x13}, []byte{})
	})
	t.Run("MissingNode", func(t *testing.T) {
		tr := NewTrie(NewHashNode(randomHash(t)), Config{Store: newTestStore()})
		_, err := tr.Get([]byte{0x01})
		require.ErrorIs(t, err, ErrNodeNotFound)
		require.ErrorIs(t, err, storage.ErrKeyNotFound)
	})
}

func TestTrie_Flush(t *testing.T) {
	pairs := map[string][]byte{
		"x":    []byte("value0"),
		"key1": []byte("value1"),
		"key2": []byte("value2"),
	}

	tr := NewTrie(nil, Config{Store: newTestStore()})
	for k, v := range pairs {
		require.NoError(t, tr.Put([]byte(k), v))
	}

	root := tr.StateRoot()
	require.NoError(t, tr.Flush())
	require.Equal(t, root, tr.StateRoot())
	require.IsType(t, (*HashNode)(nil), tr.root)

	tr = NewTrie(NewHashNode(root), Config{Store: tr.Store})
	for k, v := range pairs {
		actual, err := tr.Get([]byte(k))
		require.NoError(t, err)
		require.Equal(t, v, actual)
	}
}

func TestTrie_FlushWith(t *testing.T) {
	st := newTestStore()
	tr := NewTrie(nil, Config{Store: st})
	require.NoError(t, st.Put([]byte("stale"), []byte{1}))
	require.NoError(t, tr.Put([]byte("k"), []byte("v")))
	require.NoError(t, tr.FlushWith(map[string][]byte{
		"root":  tr.StateRoot().BytesBE(),
		"stale": nil,
	}))

	raw, err := st.Get([]byte("root"))
	require.NoError(t, err)
	require.Equal(t, tr.StateRoot().BytesBE(), raw)
	_, err = st.Get([]byte("stale"))
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
	tr.testHas(t, []byte("k"), []byte("v"))

	require.NoError(t, tr.Delete([]byte("k")))
	require.NoError(t, tr.Flush())
	require.True(t, tr.StateRoot().IsZero())
	require.IsType(t, EmptyNode{}, tr.root)
}

type failingStore struct {
	*storage.MemoryStore
}

func (failingStore) PutChangeSet(map[string][]byte) error {
	return errors.New("disk is full")
}

func TestTrie_FlushError(t *testing.T) {
	tr := NewTrie(nil, Config{Store: failingStore{newTestStore()}})
	require.NoError(t, tr.Put([]byte("k"), []byte("v")))
	require.Error(t, tr.Flush())
	tr.testHas(t, []byte("k"), []byte("v"))
}

func TestTrie_Delete(t *testing.T) {
	t.Run("Hash", func(t *testing.T) {
		t.Run("FromStore", func(t *testing.T) {
			l := NewLeafNode([]byte{0x12})
			tr := NewTrie(NewHashNode(l.Hash(hash.DoubleSha256)), Config{Store: newTestStore()})
			t.Run("NotInStore", func(t *testing.T) {
				require.Error(t, tr.Delete([]byte{}))
			})

			tr.putToStore(l)
			tr.testHas(t, []byte{}, []byte{0x12})
			require.NoError(t, tr.Delete([]byte{}))
			tr.testHas(t, []byte{}, nil)
		})

		t.Run("Empty", func(t *testing.T) {
			tr := NewTrie(nil, Config{Store: newTestStore()})
			require.NoError(t, tr.Delete([]byte{}))
			require.True(t, tr.StateRoot().IsZero())
		})
	})

	t.Run("Leaf", func(t *testing.T) {
		check := func(t *testing.T, value []byte) {
			l := NewLeafNode(value)
			tr := NewTrie(l, Config{Store: newTestStore()})
			t.Run("NonExistentKey", func(t *testing.T) {
				require.NoError(t, tr.Delete([]byte{0x12}))
				tr.testHas(t, []byte{}, value)
			})
			require.NoError(t, tr.Delete([]byte{}))
			tr.testHas(t, []byte{}, nil)
		}
		t.Run("non-empty value", func(t *testing.T) {
			check(t, []byte{0x12, 0x34})
		})
		t.Run("empty value", func(t *testing.T) {
			check(t, []byte{})
		})
	})

	t.Run("Extension", func(t *testing.T) {
		t.Run("SingleKey", func(t *testing.T) {
			l := NewLeafNode([]byte{0x12, 0x34})
			e := NewExtensionNode([]byte{0x0A, 0x0B}, l)
			tr := NewTrie(e, Config{Store: newTestStore()})

			t.Run("NonExistentKey", func(t *testing.T) {
				require.NoError(t, tr.Delete([]byte{}))
				tr.testHas(t, []byte{0xAB}, []byte{0x12, 0x34})
			})

			require.NoError(t, tr.Delete([]byte{0xAB}))
			require.IsType(t, EmptyNode{}, tr.root)
		})

		t.Run("MultipleKeys", func(t *testing.T) {
			b := NewBranchNode()
			b.Children[0] = NewExtensionNode([]byte{0x01}, NewLeafNode([]byte{0x12, 0x34}))
			b.Children[6] = NewExtensionNode([]byte{0x07}, NewLeafNode([]byte{0x56, 0x78}))
			e := NewExtensionNode([]byte{0x01, 0x02}, b)
			tr := NewTrie(e, Config{Store: newTestStore()})

			h := e.Hash(hash.DoubleSha256)
			require.NoError(t, tr.Delete([]byte{0x12, 0x02}))
			require.Equal(t, h, tr.root.Hash(tr.hasher))

			require.NoError(t, tr.Delete([]byte{0x12, 0x01}))
			tr.testHas(t, []byte{0x12, 0x01}, nil)
			tr.testHas(t, []byte{0x12, 0x67}, []byte{0x56, 0x78})

			require.IsType(t, (*ExtensionNode)(nil), tr.root)
			require.Equal(t, []byte{0x01, 0x02, 0x06, 0x07}, tr.root.(*ExtensionNode).key)
		})
	})

	t.Run("Branch", func(t *testing.T) {
		t.Run("3 Children", func(t *testing.T) {
			b := NewBranchNode()
			b.Children[lastChild] = NewLeafNode([]byte{0x12})
			b.Children[0] = NewExtensionNode([]byte{0x01}, NewLeafNode([]byte{0x34}))
			b.Children[1] = NewExtensionNode([]byte{0x06}, NewLeafNode([]byte{0x56}))
			tr := NewTrie(b, Config{Store: newTestStore()})
			require.NoError(t, tr.Delete([]byte{0x16}))
			tr.testHas(t, []byte{}, []byte{0x12})
			tr.testHas(t, []byte{0x01}, []byte{0x34})
			tr.testHas(t, []byte{0x16}, nil)
			require.True(t, isValid(tr.root))
		})
		t.Run("2 Children", func(t *testing.T) {
			newt := func(t *testing.T) *Trie {
				b := NewBranchNode()
				b.Children[lastChild] = NewLeafNode([]byte{0x12})
				l := NewLeafNode([]byte{0x34})
				e := NewExtensionNode([]byte{0x06}, l)
				b.Children[5] = NewHashNode(e.Hash(hash.DoubleSha256))
				tr := NewTrie(b, Config{Store: newTestStore()})
				tr.putToStore(l)
				tr.putToStore(e)
				return tr
			}

			t.Run("DeleteLast", func(t *testing.T) {
				t.Run("MergeExtension", func(t *testing.T) {
					tr := newt(t)
					require.NoError(t, tr.Delete([]byte{}))
					tr.testHas(t, []byte{}, nil)
					tr.testHas(t, []byte{0x56}, []byte{0x34})
					require.IsType(t, (*ExtensionNode)(nil), tr.root)
					require.Equal(t, []byte{0x05, 0x06}, tr.root.(*ExtensionNode).key)
				})

				t.Run("LeaveBranch", func(t *testing.T) {
					c := NewBranchNode()
					c.Children[5] = NewExtensionNode([]byte{0x05}, NewLeafNode([]byte{0x05}))
					c.Children[6] = NewExtensionNode([]byte{0x06}, NewLeafNode([]byte{0x06}))

					b := NewBranchNode()
					b.Children[lastChild] = NewLeafNode([]byte{0x12})
					b.Children[5] = c
					tr := NewTrie(b, Config{Store: newTestStore()})

					require.NoError(t, tr.Delete([]byte{}))
					tr.testHas(t, []byte{}, nil)
					require.IsType(t, (*ExtensionNode)(nil), tr.root)
					require.Equal(t, []byte{0x05}, tr.root.(*ExtensionNode).key)
					require.True(t, isValid(tr.root))
				})
			})

			t.Run("DeleteMiddle", func(t *testing.T) {
				tr := newt(t)
				require.NoError(t, tr.Delete([]byte{0x56}))
				tr.testHas(t, []byte{}, []byte{0x12})
				tr.testHas(t, []byte{0x56}, nil)
				require.IsType(t, (*LeafNode)(nil), tr.root)
			})
		})
	})
}

func TestTrie_PanicInvalidRoot(t *testing.T) {
	tr := &Trie{Store: newTestStore(), hasher: hash.DoubleSha256}
	require.Panics(t, func() { _ = tr.Put([]byte{1}, []byte{2}) })
	require.Panics(t, func() { _, _ = tr.Get([]byte{1}) })
}

func TestTrie_Cache(t *testing.T) {
	cache, err := NewNodeCache(16)
	require.NoError(t, err)
	st := newTestStore()

	tr := NewTrie(nil, Config{Store: st, Cache: cache})
	require.NoError(t, tr.Put([]byte{0x12}, []byte("a")))
	require.NoError(t, tr.Put([]byte{0x13}, []byte("b")))
	require.NoError(t, tr.Flush())
	require.Equal(t, 0, cache.Len())

	tr.testHas(t, []byte{0x12}, []byte("a"))
	require.NotZero(t, cache.Len())

	// Cached nodes are used even if they disappear from the store.
	drop := make(map[string][]byte)
	st.Seek(storage.SeekRange{}, func(k, _ []byte) bool {
		drop[string(k)] = nil
		return true
	})
	require.NotEmpty(t, drop)
	require.NoError(t, st.PutChangeSet(drop))
	tr.testHas(t, []byte{0x12}, []byte("a"))

	_, err = NewNodeCache(0)
	require.Error(t, err)
}

func TestTrie_Hasher(t *testing.T) {
	st := newTestStore()
	sha := NewTrie(nil, Config{Store: st})
	blake := NewTrie(nil, Config{Store: st, Hasher: hash.Blake2b256})
	for _, tr := range []*Trie{sha, blake} {
		require.NoError(t, tr.Put([]byte("key"), []byte("value")))
		require.NoError(t, tr.Flush())
	}
	require.NotEqual(t, sha.StateRoot(), blake.StateRoot())
	sha.testHas(t, []byte("key"), []byte("value"))
	blake.testHas(t, []byte("key"), []byte("value"))
}

func TestTrie_Reset(t *testing.T) {
	st := newTestStore()
	tr1 := NewTrie(nil, Config{Store: st})
	require.NoError(t, tr1.Put([]byte("key"), []byte("value")))
	require.NoError(t, tr1.Flush())

	tr2 := NewTrie(nil, Config{Store: st})
	tr2.Reset(tr1.StateRoot())
	tr2.testHas(t, []byte("key"), []byte("value"))
	tr2.Reset(util.Uint256{})
	tr2.testHas(t, []byte("key"), nil)
}

func TestTrie_Traverse(t *testing.T) {
	st := newTestStore()
	tr := NewTrie(nil, Config{Store: st})
	pairs := [][2][]byte{
		{{0x01}, {0x01}},
		{{0x01, 0x02}, {0x02}},
		{{0x01, 0x02, 0x03}, {}},
		{{0x10}, {0x03}},
		{{0xAC, 0x00}, {0x04}},
		{{0xAC, 0xFF}, {0x05}},
		{{0xFF}, {0x06}},
	}
	for i := len(pairs) - 1; i >= 0; i-- {
		require.NoError(t, tr.Put(pairs[i][0], pairs[i][1]))
	}

	check := func(t *testing.T, tr *Trie) {
		var actual [][2][]byte
		require.NoError(t, tr.Traverse(func(k, v []byte) bool {
			actual = append(actual, [2][]byte{k, copySlice(v)})
			return true
		}))
		require.Equal(t, pairs, actual)

		n, err := tr.Count()
		require.NoError(t, err)
		require.Equal(t, len(pairs), n)

		var visited int
		require.NoError(t, tr.Traverse(func(_, _ []byte) bool {
			visited++
			return visited < 3
		}))
		require.Equal(t, 3, visited)
	}
	t.Run("in memory", func(t *testing.T) { check(t, tr) })

	require.NoError(t, tr.Flush())
	t.Run("flushed", func(t *testing.T) {
		check(t, NewTrie(RootNode(tr.StateRoot()), Config{Store: st}))
	})

	t.Run("empty", func(t *testing.T) {
		n, err := NewTrie(nil, Config{Store: st}).Count()
		require.NoError(t, err)
		require.Equal(t, 0, n)
	})

	t.Run("missing node", func(t *testing.T) {
		tr := NewTrie(NewHashNode(randomHash(t)), Config{Store: newTestStore()})
		err := tr.Traverse(func(_, _ []byte) bool { return true })
		require.ErrorIs(t, err, ErrNodeNotFound)
	})
}
