package mpt

import (
	"bytes"
	"errors"
	"sort"
)

// Batch is a batch of storage changes.
// It has its keys sorted by nibble path, so that a batch can be applied in
// a deterministic order regardless of the way it was built.
type Batch struct {
	kv []keyValue
}

type keyValue struct {
	key   []byte
	value []byte
}

// MapToMPTBatch makes a Batch from an unordered set of storage changes.
// Nil values denote deletions.
func MapToMPTBatch(m map[string][]byte) Batch {
	var b Batch

	b.kv = make([]keyValue, 0, len(m))

	for k, v := range m {
		b.kv = append(b.kv, keyValue{toNibbles([]byte(k)), v})
	}
	sort.Slice(b.kv, func(i, j int) bool {
		return bytes.Compare(b.kv[i].key, b.kv[j].key) < 0
	})
	return b
}

// PutBatch applies b to t. Either all changes are applied or none of them:
// on failure the trie is left intact and the index of the failed item is
// returned along with the error. Deleting a missing key is not an error.
func (t *Trie) PutBatch(b Batch) (int, error) {
	r := t.root
	for i, kv := range b.kv {
		var (
			nr  Node
			err error
		)
		if kv.value == nil {
			nr, err = t.deleteFromNode(r, kv.key)
			if errors.Is(err, ErrNotFound) {
				continue
			}
		} else {
			if err = checkPath(kv.key, kv.value); err == nil {
				nr, err = t.putIntoNode(r, kv.key, NewLeafNode(copyValue(kv.value)))
			}
		}
		if err != nil {
			return i, err
		}
		r = nr
	}
	t.root = r
	return len(b.kv), nil
}
