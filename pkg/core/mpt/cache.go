package mpt

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/lrmpt/lrmpt/pkg/util"
)

// NodeCache keeps recently used decoded nodes by their hash. Cached nodes
// are immutable, so a single cache can be shared between any number of
// tries using the same store and hasher.
type NodeCache struct {
	arc *lru.ARCCache
}

// NewNodeCache creates a cache holding up to size nodes.
func NewNodeCache(size int) (*NodeCache, error) {
	arc, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &NodeCache{arc: arc}, nil
}

// Get returns a node with the given hash if it's cached.
func (c *NodeCache) Get(h util.Uint256) (Node, bool) {
	v, ok := c.arc.Get(h)
	if !ok {
		return nil, false
	}
	return v.(Node), true
}

// Add puts n into the cache.
func (c *NodeCache) Add(h util.Uint256, n Node) {
	c.arc.Add(h, n)
}

// Len returns the number of cached nodes.
func (c *NodeCache) Len() int {
	return c.arc.Len()
}
