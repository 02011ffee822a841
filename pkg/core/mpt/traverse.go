package mpt

import "errors"

// errStop is used to unwind traversal once the callback asks to stop.
var errStop = errors.New("stop")

// Traverse calls f for every key-value pair of t in ascending key order
// until f returns false. Nodes missing from the store are reported as
// ErrNodeNotFound. Like Get, it doesn't modify t, so it's safe to traverse a
// flushed trie concurrently. Key and value passed to f must not be retained.
func (t *Trie) Traverse(f func(key, value []byte) bool) error {
	err := t.traverse(t.root, make([]byte, 0, 2*MaxKeyLength), f)
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

// Count returns the number of key-value pairs in t.
func (t *Trie) Count() (int, error) {
	var n int
	err := t.Traverse(func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}

func (t *Trie) traverse(curr Node, path []byte, f func(key, value []byte) bool) error {
	switch n := curr.(type) {
	case *LeafNode:
		if !f(fromNibbles(path), n.value) {
			return errStop
		}
	case *BranchNode:
		// A key ending at the branch is a prefix of every key below it.
		if err := t.traverse(n.Children[lastChild], path, f); err != nil {
			return err
		}
		for i := byte(0); i < lastChild; i++ {
			if err := t.traverse(n.Children[i], append(path, i), f); err != nil {
				return err
			}
		}
	case *ExtensionNode:
		return t.traverse(n.next, append(path, n.key...), f)
	case *HashNode:
		r, err := t.getFromStore(n.hash)
		if err != nil {
			return err
		}
		return t.traverse(r, path, f)
	case EmptyNode:
	default:
		panic("invalid MPT node type")
	}
	return nil
}
