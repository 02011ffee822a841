package mpt

import (
	"github.com/lrmpt/lrmpt/pkg/crypto/hash"
	"github.com/lrmpt/lrmpt/pkg/io"
	"github.com/lrmpt/lrmpt/pkg/util"
)

// HashNode represents MPT's hash node, a reference to some node kept in
// the store.
type HashNode struct {
	hash util.Uint256
}

var _ Node = (*HashNode)(nil)

// NewHashNode returns hash node with the specified hash.
func NewHashNode(h util.Uint256) *HashNode {
	return &HashNode{hash: h}
}

// Type implements Node interface.
func (h *HashNode) Type() NodeType { return HashT }

// Hash implements Node interface.
func (h *HashNode) Hash(hash.Func) util.Uint256 {
	return h.hash
}

// Bytes returns serialized HashNode.
func (h *HashNode) Bytes(f hash.Func) []byte {
	return toBytes(h, f)
}

// IsFlushed implements Node interface, referenced node is already stored.
func (h *HashNode) IsFlushed() bool {
	return true
}

// DecodeBinary implements Node interface.
func (h *HashNode) DecodeBinary(r *io.BinReader) {
	h.hash.DecodeBinary(r)
}

func (h *HashNode) encode(w *io.BinWriter, _ hash.Func) {
	w.WriteBytes(h.hash[:])
}
