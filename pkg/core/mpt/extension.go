package mpt

import (
	"fmt"

	"github.com/lrmpt/lrmpt/pkg/crypto/hash"
	"github.com/lrmpt/lrmpt/pkg/io"
	"github.com/lrmpt/lrmpt/pkg/util"
)

const (
	// MaxKeyLength is the max length of the key to put in the trie
	// before transforming to nibbles.
	MaxKeyLength = 1024

	// maxPathLength is the max length of the extension node key.
	maxPathLength = MaxKeyLength * 2
)

// ExtensionNode represents an MPT's extension node.
type ExtensionNode struct {
	BaseNode
	key  []byte
	next Node
}

var _ Node = (*ExtensionNode)(nil)

// NewExtensionNode returns an extension node with the specified key and the
// next node. The key must be mangled, i.e. must contain only bytes with
// high half = 0.
func NewExtensionNode(key []byte, next Node) *ExtensionNode {
	return &ExtensionNode{
		key:  key,
		next: next,
	}
}

// Type implements Node interface.
func (e *ExtensionNode) Type() NodeType { return ExtensionT }

// Hash implements Node interface.
func (e *ExtensionNode) Hash(h hash.Func) util.Uint256 {
	return e.getHash(e, h)
}

// Bytes implements Node interface.
func (e *ExtensionNode) Bytes(h hash.Func) []byte {
	return e.getBytes(e, h)
}

// DecodeBinary implements Node interface.
func (e *ExtensionNode) DecodeBinary(r *io.BinReader) {
	sz := r.ReadVarUint()
	if sz > maxPathLength {
		if r.Err == nil {
			r.Err = fmt.Errorf("extension node key is too big: %d", sz)
		}
		return
	}
	e.key = make([]byte, sz)
	r.ReadBytes(e.key)
	e.next = decodeBinaryAsChild(r)
}

func (e *ExtensionNode) encode(w *io.BinWriter, h hash.Func) {
	w.WriteVarBytes(e.key)
	encodeBinaryAsChild(e.next, w, h)
}
