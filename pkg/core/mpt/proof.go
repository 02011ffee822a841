package mpt

import (
	"bytes"
	"errors"

	"github.com/lrmpt/lrmpt/pkg/core/storage"
	"github.com/lrmpt/lrmpt/pkg/crypto/hash"
	"github.com/lrmpt/lrmpt/pkg/util"
	"github.com/lrmpt/lrmpt/pkg/util/slice"
)

// GetProof returns a proof for the key in t. Proof consists of serialized
// nodes occurring on path from the root to the leaf of key. For a missing
// key it contains nodes from the root up to the point where the path
// diverges, so it proves absence.
func (t *Trie) GetProof(key []byte) ([][]byte, error) {
	if len(key) > MaxKeyLength {
		return nil, ErrKeyTooBig
	}
	var proof [][]byte
	path := toNibbles(key)
	err := t.getProof(t.root, path, &proof)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return proof, nil
}

func (t *Trie) getProof(curr Node, path []byte, proofs *[][]byte) error {
	switch n := curr.(type) {
	case *LeafNode:
		*proofs = append(*proofs, slice.Copy(n.Bytes(t.hasher)))
		if len(path) == 0 {
			return nil
		}
	case *BranchNode:
		*proofs = append(*proofs, slice.Copy(n.Bytes(t.hasher)))
		i, path := splitPath(path)
		return t.getProof(n.Children[i], path, proofs)
	case *ExtensionNode:
		*proofs = append(*proofs, slice.Copy(n.Bytes(t.hasher)))
		if bytes.HasPrefix(path, n.key) {
			return t.getProof(n.next, path[len(n.key):], proofs)
		}
	case *HashNode:
		r, err := t.getFromStore(n.hash)
		if err != nil {
			return err
		}
		return t.getProof(r, path, proofs)
	}
	return ErrNotFound
}

func verify(h hash.Func, rh util.Uint256, key []byte, proofs [][]byte) ([]byte, error) {
	if h == nil {
		h = hash.DoubleSha256
	}
	if len(key) > MaxKeyLength {
		return nil, ErrKeyTooBig
	}
	path := toNibbles(key)
	tr := NewTrie(RootNode(rh), Config{Store: storage.NewMemoryStore(), Hasher: h})
	for i := range proofs {
		// no errors in Put to memory store
		_ = tr.Store.Put(makeStorageKey(h(proofs[i])), proofs[i])
	}
	return tr.getWithPath(tr.root, path)
}

// VerifyProof verifies that path indeed belongs to a MPT with the specified root hash.
// It also returns value for the key.
func VerifyProof(h hash.Func, rh util.Uint256, key []byte, proofs [][]byte) ([]byte, bool) {
	bs, err := verify(h, rh, key, proofs)
	return bs, err == nil
}

// VerifyAbsence verifies that proofs show the key is missing from MPT with
// the specified root hash.
func VerifyAbsence(h hash.Func, rh util.Uint256, key []byte, proofs [][]byte) bool {
	_, err := verify(h, rh, key, proofs)
	return errors.Is(err, ErrNotFound)
}

// CheckProof verifies that the key maps to the value in MPT with the
// specified root hash. Nil value means the key must be absent.
func CheckProof(h hash.Func, rh util.Uint256, key, value []byte, proofs [][]byte) bool {
	if value == nil {
		return VerifyAbsence(h, rh, key, proofs)
	}
	v, ok := VerifyProof(h, rh, key, proofs)
	return ok && bytes.Equal(v, value)
}
