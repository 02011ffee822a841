package mpt

import (
	"github.com/lrmpt/lrmpt/pkg/crypto/hash"
	"github.com/lrmpt/lrmpt/pkg/io"
	"github.com/lrmpt/lrmpt/pkg/util"
)

const (
	// childrenCount represents the number of children of a branch node.
	childrenCount = 17
	// lastChild is the index of the last child, used for a value ending
	// exactly at the branch.
	lastChild = childrenCount - 1
)

// BranchNode represents an MPT's branch node.
type BranchNode struct {
	BaseNode
	Children [childrenCount]Node
}

var _ Node = (*BranchNode)(nil)

// NewBranchNode returns a new branch node.
func NewBranchNode() *BranchNode {
	b := new(BranchNode)
	for i := 0; i < childrenCount; i++ {
		b.Children[i] = EmptyNode{}
	}
	return b
}

// Type implements Node interface.
func (b *BranchNode) Type() NodeType { return BranchT }

// Hash implements Node interface.
func (b *BranchNode) Hash(h hash.Func) util.Uint256 {
	return b.getHash(b, h)
}

// Bytes implements Node interface.
func (b *BranchNode) Bytes(h hash.Func) []byte {
	return b.getBytes(b, h)
}

// clone returns a copy of b with invalidated cache.
func (b *BranchNode) clone() *BranchNode {
	return &BranchNode{Children: b.Children}
}

// DecodeBinary implements Node interface.
func (b *BranchNode) DecodeBinary(r *io.BinReader) {
	for i := 0; i < childrenCount; i++ {
		b.Children[i] = decodeBinaryAsChild(r)
	}
}

func (b *BranchNode) encode(w *io.BinWriter, h hash.Func) {
	for i := 0; i < childrenCount; i++ {
		encodeBinaryAsChild(b.Children[i], w, h)
	}
}

// splitPath splits path for a branch node.
func splitPath(path []byte) (byte, []byte) {
	if len(path) != 0 {
		return path[0], path[1:]
	}
	return lastChild, path
}
