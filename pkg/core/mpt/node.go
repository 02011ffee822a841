package mpt

import (
	"github.com/lrmpt/lrmpt/pkg/crypto/hash"
	"github.com/lrmpt/lrmpt/pkg/io"
)

// NodeType represents node type.
type NodeType byte

// Node types definitions.
const (
	BranchT    NodeType = 0x00
	ExtensionT NodeType = 0x01
	HashT      NodeType = 0x02
	LeafT      NodeType = 0x03
	EmptyT     NodeType = 0x04
)

// Node represents common interface of all MPT nodes. Nodes are never
// modified once they become a part of some trie, every change produces
// a new node instead.
type Node interface {
	BaseNodeIface
	DecodeBinary(*io.BinReader)
	encode(*io.BinWriter, hash.Func)
}

// isEmpty checks whether n is an EmptyNode.
func isEmpty(n Node) bool {
	_, ok := n.(EmptyNode)
	return ok
}

// toBytes is a helper for serializing node.
func toBytes(n Node, h hash.Func) []byte {
	buf := io.NewBufBinWriter()
	encodeNodeWithType(n, buf.BinWriter, h)
	return buf.Bytes()
}
