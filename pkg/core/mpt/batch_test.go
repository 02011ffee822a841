package mpt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapToMPTBatch(t *testing.T) {
	b := MapToMPTBatch(map[string][]byte{
		"\x02": {3},
		"\x01": nil,
		"":     {1},
	})
	expected := []keyValue{
		{[]byte{}, []byte{1}},
		{[]byte{0, 1}, nil},
		{[]byte{0, 2}, []byte{3}},
	}
	require.Equal(t, expected, b.kv)
}

type pairs = [][2][]byte

func testPut(t *testing.T, ps pairs, tr1, tr2 *Trie) {
	m := make(map[string][]byte, len(ps))
	for i, p := range ps {
		if p[1] == nil {
			require.NoError(t, tr1.Delete(p[0]), "item %d", i)
		} else {
			require.NoError(t, tr1.Put(p[0], p[1]), "item %d", i)
		}
		m[string(p[0])] = p[1]
	}

	num, err := tr2.PutBatch(MapToMPTBatch(m))
	require.NoError(t, err)
	require.Equal(t, len(m), num)
	require.Equal(t, tr1.StateRoot(), tr2.StateRoot())

	t.Run("test restore", func(t *testing.T) {
		require.NoError(t, tr2.Flush())
		tr3 := NewTrie(RootNode(tr2.StateRoot()), Config{Store: tr2.Store})
		for _, p := range ps {
			val, err := tr3.Get(p[0])
			if p[1] == nil {
				require.ErrorIs(t, err, ErrNotFound)
				continue
			}
			require.NoError(t, err)
			require.Equal(t, p[1], val)
		}
	})
}

func TestTrie_PutBatchRemoveAll(t *testing.T) {
	tr := NewTrie(nil, Config{Store: newTestStore()})
	require.NoError(t, tr.Put([]byte{0xAC, 0x01}, []byte("one")))
	require.NoError(t, tr.Put([]byte{0xAC, 0x02}, []byte("two")))
	require.NoError(t, tr.Flush())

	b := MapToMPTBatch(map[string][]byte{
		"\xAC\x01": nil,
		"\xAC\x02": nil,
	})
	_, err := tr.PutBatch(b)
	require.NoError(t, err)
	require.NoError(t, tr.Flush())
	require.True(t, tr.StateRoot().IsZero())

	restored := NewTrie(RootNode(tr.StateRoot()), Config{Store: tr.Store})
	_, err = restored.Get([]byte{0xAC, 0x01})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTrie_PutBatchLeaf(t *testing.T) {
	prepareLeaf := func(t *testing.T) (*Trie, *Trie) {
		tr1 := NewTrie(nil, Config{Store: newTestStore()})
		tr2 := NewTrie(nil, Config{Store: newTestStore()})
		require.NoError(t, tr1.Put([]byte{0}, []byte("value")))
		require.NoError(t, tr2.Put([]byte{0}, []byte("value")))
		return tr1, tr2
	}

	t.Run("remove", func(t *testing.T) {
		tr1, tr2 := prepareLeaf(t)
		var ps = pairs{{[]byte{0}, nil}}
		testPut(t, ps, tr1, tr2)
	})
	t.Run("empty value", func(t *testing.T) {
		tr1, tr2 := prepareLeaf(t)
		var ps = pairs{{[]byte{0}, []byte{}}}
		testPut(t, ps, tr1, tr2)
	})
	t.Run("replace", func(t *testing.T) {
		tr1, tr2 := prepareLeaf(t)
		var ps = pairs{{[]byte{0}, []byte("replace")}}
		testPut(t, ps, tr1, tr2)
	})
	t.Run("remove and replace", func(t *testing.T) {
		tr1, tr2 := prepareLeaf(t)
		var ps = pairs{
			{[]byte{0}, nil},
			{[]byte{0, 2}, []byte("replace2")},
		}
		testPut(t, ps, tr1, tr2)
	})
}

func TestTrie_PutBatchExtension(t *testing.T) {
	prepareExtension := func(t *testing.T) (*Trie, *Trie) {
		tr1 := NewTrie(nil, Config{Store: newTestStore()})
		tr2 := NewTrie(nil, Config{Store: newTestStore()})
		require.NoError(t, tr1.Put([]byte{1, 2}, []byte("value1")))
		require.NoError(t, tr2.Put([]byte{1, 2}, []byte("value1")))
		return tr1, tr2
	}

	t.Run("split, key len > 1", func(t *testing.T) {
		tr1, tr2 := prepareExtension(t)
		var ps = pairs{{[]byte{2, 3}, []byte("value2")}}
		testPut(t, ps, tr1, tr2)
	})
	t.Run("split, key len = 1", func(t *testing.T) {
		tr1, tr2 := prepareExtension(t)
		var ps = pairs{{[]byte{1, 3}, []byte("value2")}}
		testPut(t, ps, tr1, tr2)
	})
	t.Run("add to next", func(t *testing.T) {
		tr1, tr2 := prepareExtension(t)
		var ps = pairs{{[]byte{1, 2, 3}, []byte("value2")}}
		testPut(t, ps, tr1, tr2)
	})
	t.Run("remove value", func(t *testing.T) {
		tr1, tr2 := prepareExtension(t)
		var ps = pairs{{[]byte{1, 2}, nil}}
		testPut(t, ps, tr1, tr2)
	})
	t.Run("remove missing", func(t *testing.T) {
		tr1, tr2 := prepareExtension(t)
		var ps = pairs{{[]byte{1, 3}, nil}, {[]byte{7}, []byte("x")}}
		testPut(t, ps, tr1, tr2)
	})
}

func TestTrie_PutBatchBranch(t *testing.T) {
	prepareBranch := func(t *testing.T) (*Trie, *Trie) {
		tr1 := NewTrie(nil, Config{Store: newTestStore()})
		tr2 := NewTrie(nil, Config{Store: newTestStore()})
		require.NoError(t, tr1.Put([]byte{0x00, 2}, []byte("value1")))
		require.NoError(t, tr2.Put([]byte{0x00, 2}, []byte("value1")))
		require.NoError(t, tr1.Put([]byte{0x10, 3}, []byte("value2")))
		require.NoError(t, tr2.Put([]byte{0x10, 3}, []byte("value2")))
		return tr1, tr2
	}

	t.Run("simple", func(t *testing.T) {
		tr1, tr2 := prepareBranch(t)
		var ps = pairs{{[]byte{0x00, 2}, []byte("value3")}}
		testPut(t, ps, tr1, tr2)
	})
	t.Run("remove 1, transform to extension", func(t *testing.T) {
		tr1, tr2 := prepareBranch(t)
		var ps = pairs{{[]byte{0x00, 2}, nil}}
		testPut(t, ps, tr1, tr2)
	})
	t.Run("remove all", func(t *testing.T) {
		tr1, tr2 := prepareBranch(t)
		var ps = pairs{{[]byte{0x00, 2}, nil}, {[]byte{0x10, 3}, nil}}
		testPut(t, ps, tr1, tr2)
		require.True(t, tr2.StateRoot().IsZero())
	})
}

func TestTrie_PutBatchAtomic(t *testing.T) {
	tr := NewTrie(nil, Config{Store: newTestStore()})
	require.NoError(t, tr.Put([]byte{1}, []byte("one")))
	root := tr.StateRoot()

	num, err := tr.PutBatch(MapToMPTBatch(map[string][]byte{
		"\x00": []byte("zero"),
		"\x02": make([]byte, MaxValueLength+1),
		"\x03": []byte("three"),
	}))
	require.ErrorIs(t, err, ErrValueTooBig)
	require.Equal(t, 1, num)
	require.Equal(t, root, tr.StateRoot())
	tr.testHas(t, []byte{0}, nil)

	_, err = tr.PutBatch(MapToMPTBatch(map[string][]byte{
		string(make([]byte, MaxKeyLength+1)): []byte("big"),
	}))
	require.ErrorIs(t, err, ErrKeyTooBig)
}
