package mpt

import (
	"github.com/lrmpt/lrmpt/pkg/crypto/hash"
	"github.com/lrmpt/lrmpt/pkg/io"
	"github.com/lrmpt/lrmpt/pkg/util"
)

// EmptyNode represents empty node.
type EmptyNode struct{}

var _ Node = EmptyNode{}

// DecodeBinary implements Node interface.
func (e EmptyNode) DecodeBinary(*io.BinReader) {
}

func (e EmptyNode) encode(*io.BinWriter, hash.Func) {
}

// Hash implements Node interface.
func (e EmptyNode) Hash(hash.Func) util.Uint256 {
	panic("can't get hash of an EmptyNode")
}

// Type implements Node interface.
func (e EmptyNode) Type() NodeType {
	return EmptyT
}

// Bytes implements Node interface.
func (e EmptyNode) Bytes(hash.Func) []byte {
	return nil
}

// IsFlushed implements Node interface, there is nothing to flush.
func (e EmptyNode) IsFlushed() bool {
	return true
}
