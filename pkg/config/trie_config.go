package config

import (
	"fmt"

	"github.com/lrmpt/lrmpt/pkg/core/leftright"
	"github.com/lrmpt/lrmpt/pkg/crypto/hash"
)

// Default Trie settings.
const (
	DefaultHash          = hash.DoubleSha256Name
	DefaultNodeCacheSize = 4096
	DefaultWritePolicy   = "block"
)

// Trie contains split-copy trie settings.
type Trie struct {
	// Hash is the name of the node hash function, see hash.ByName.
	Hash string `yaml:"Hash"`
	// NodeCacheSize is the number of decoded nodes shared by both copies,
	// zero disables the cache.
	NodeCacheSize int `yaml:"NodeCacheSize"`
	// WritePolicy is either "block" or "failfast".
	WritePolicy string `yaml:"WritePolicy"`
}

// Validate returns an error if Trie configuration is not valid.
func (t Trie) Validate() error {
	if _, _, err := hash.ByName(t.Hash); err != nil {
		return err
	}
	if t.NodeCacheSize < 0 {
		return fmt.Errorf("negative NodeCacheSize: %d", t.NodeCacheSize)
	}
	if _, err := leftright.ParseWritePolicy(t.WritePolicy); err != nil {
		return err
	}
	return nil
}
