package mpt

import (
	"fmt"

	"github.com/lrmpt/lrmpt/pkg/core/storage"
	"github.com/lrmpt/lrmpt/pkg/crypto/hash"
	"github.com/lrmpt/lrmpt/pkg/io"
	"github.com/lrmpt/lrmpt/pkg/util"
)

// MaxValueLength is a max length of a leaf node value.
const MaxValueLength = storage.MaxStorageValueLen + 4

// LeafNode represents MPT's leaf node. Its key remainder is kept by the
// extension node pointing to it.
type LeafNode struct {
	BaseNode
	value []byte
}

var _ Node = (*LeafNode)(nil)

// NewLeafNode returns leaf node with the specified value.
func NewLeafNode(value []byte) *LeafNode {
	return &LeafNode{value: value}
}

// Type implements Node interface.
func (n *LeafNode) Type() NodeType { return LeafT }

// Hash implements Node interface.
func (n *LeafNode) Hash(h hash.Func) util.Uint256 {
	return n.getHash(n, h)
}

// Bytes implements Node interface.
func (n *LeafNode) Bytes(h hash.Func) []byte {
	return n.getBytes(n, h)
}

// DecodeBinary implements Node interface.
func (n *LeafNode) DecodeBinary(r *io.BinReader) {
	sz := r.ReadVarUint()
	if sz > MaxValueLength {
		if r.Err == nil {
			r.Err = fmt.Errorf("leaf node value is too big: %d", sz)
		}
		return
	}
	n.value = make([]byte, sz)
	r.ReadBytes(n.value)
}

func (n *LeafNode) encode(w *io.BinWriter, _ hash.Func) {
	w.WriteVarBytes(n.value)
}
