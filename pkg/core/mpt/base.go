package mpt

import (
	"fmt"

	"github.com/lrmpt/lrmpt/pkg/crypto/hash"
	"github.com/lrmpt/lrmpt/pkg/io"
	"github.com/lrmpt/lrmpt/pkg/util"
)

// BaseNode implements basic things every node needs like caching hash and
// serialized representation. It's a basic node building block intended to be
// included into all node types.
type BaseNode struct {
	hash       util.Uint256
	bytes      []byte
	hashValid  bool
	bytesValid bool

	isFlushed bool
}

// BaseNodeIface abstracts away basic Node functions.
type BaseNodeIface interface {
	Hash(hash.Func) util.Uint256
	Type() NodeType
	Bytes(hash.Func) []byte
	IsFlushed() bool
}

type flushedNode interface {
	setCache([]byte, util.Uint256)
}

func (b *BaseNode) setCache(bs []byte, h util.Uint256) {
	b.bytes = bs
	b.hash = h
	b.bytesValid = true
	b.hashValid = true
	b.isFlushed = true
}

// getHash returns a hash of this BaseNode.
func (b *BaseNode) getHash(n Node, h hash.Func) util.Uint256 {
	if !b.hashValid {
		b.hash = h(b.getBytes(n, h))
		b.hashValid = true
	}
	return b.hash
}

// getBytes returns a slice of bytes representing this node.
func (b *BaseNode) getBytes(n Node, h hash.Func) []byte {
	if !b.bytesValid {
		buf := io.NewBufBinWriter()
		encodeNodeWithType(n, buf.BinWriter, h)
		b.bytes = buf.Bytes()
		b.bytesValid = true
	}
	return b.bytes
}

// IsFlushed checks for node flush status.
func (b *BaseNode) IsFlushed() bool {
	return b.isFlushed
}

// encodeNodeWithType encodes node together with it's type.
func encodeNodeWithType(n Node, w *io.BinWriter, h hash.Func) {
	w.WriteB(byte(n.Type()))
	n.encode(w, h)
}

// encodeBinaryAsChild encodes a reference to n: its type for empty nodes and
// its hash for everything else.
func encodeBinaryAsChild(n Node, w *io.BinWriter, h hash.Func) {
	if isEmpty(n) {
		w.WriteB(byte(EmptyT))
		return
	}
	w.WriteB(byte(HashT))
	w.WriteBytes(n.Hash(h).BytesBE())
}

// decodeBinaryAsChild decodes a child reference written by encodeBinaryAsChild.
func decodeBinaryAsChild(r *io.BinReader) Node {
	switch typ := NodeType(r.ReadB()); typ {
	case EmptyT:
		return EmptyNode{}
	case HashT:
		n := new(HashNode)
		n.DecodeBinary(r)
		return n
	default:
		if r.Err == nil {
			r.Err = fmt.Errorf("invalid child node type: %x", typ)
		}
		return EmptyNode{}
	}
}

// DecodeNodeWithType decodes node together with it's type.
func DecodeNodeWithType(r *io.BinReader) Node {
	var n Node
	switch typ := NodeType(r.ReadB()); typ {
	case BranchT:
		n = new(BranchNode)
	case ExtensionT:
		n = new(ExtensionNode)
	case HashT:
		n = new(HashNode)
	case LeafT:
		n = new(LeafNode)
	case EmptyT:
		n = EmptyNode{}
	default:
		if r.Err == nil {
			r.Err = fmt.Errorf("invalid node type: %x", typ)
		}
		return nil
	}
	n.DecodeBinary(r)
	return n
}
