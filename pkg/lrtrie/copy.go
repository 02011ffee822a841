package lrtrie

import (
	"encoding/binary"
	"fmt"

	"github.com/lrmpt/lrmpt/pkg/core/mpt"
	"github.com/lrmpt/lrmpt/pkg/core/oplog"
	"github.com/lrmpt/lrmpt/pkg/core/storage"
	"github.com/lrmpt/lrmpt/pkg/io"
)

// copyTrie is one of the two trie copies kept by the split-copy core.
type copyTrie struct {
	trie *mpt.Trie
	// version is the number of commits that changed anything.
	version uint64
	// pending are operations absorbed since the last commit.
	pending oplog.Log
}

// Absorb implements leftright.Absorber.
func (c *copyTrie) Absorb(op oplog.Operation) error {
	var err error
	switch op.Type {
	case oplog.Insert:
		err = c.trie.Put(op.Key, op.Value)
	case oplog.Remove:
		err = c.trie.Delete(op.Key)
	case oplog.Extend:
		err = c.extend(op.Batch)
	default:
		err = fmt.Errorf("unknown operation: %s", op.Type)
	}
	if err != nil {
		return err
	}
	c.pending.Append(op)
	return nil
}

func (c *copyTrie) extend(kvs []oplog.KeyValue) error {
	m := make(map[string][]byte, len(kvs))
	for _, kv := range kvs {
		if len(kv.Key) > mpt.MaxKeyLength {
			return mpt.ErrKeyTooBig
		}
		if kv.Remove {
			m[string(kv.Key)] = nil
			continue
		}
		v := kv.Value
		if v == nil {
			v = []byte{}
		}
		m[string(kv.Key)] = v
	}
	_, err := c.trie.PutBatch(mpt.MapToMPTBatch(m))
	return err
}

// Commit implements leftright.Absorber. Every commit with pending
// operations creates a new version: its root and operations are stored
// along with the trie nodes. Replaying the same operations on the other
// copy writes the same entries again.
func (c *copyTrie) Commit() error {
	if c.pending.Len() == 0 {
		return c.trie.Flush()
	}
	var (
		next = c.version + 1
		w    = io.NewBufBinWriter()
	)
	c.pending.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return fmt.Errorf("failed to encode operations: %w", w.Err)
	}
	err := c.trie.FlushWith(map[string][]byte{
		string(versionKey(storage.DataMPTAux, next)): c.trie.StateRoot().BytesBE(),
		string(versionKey(storage.DataMPTLog, next)): w.Bytes(),
	})
	if err != nil {
		return err
	}
	c.version = next
	c.pending.Clear()
	return nil
}

// SyncWith implements leftright.Absorber. Copies share the store, so only
// the root and the version are taken from other.
func (c *copyTrie) SyncWith(other *copyTrie) error {
	c.trie.Reset(other.trie.StateRoot())
	c.version = other.version
	c.pending.Clear()
	return nil
}

// versionKey returns the key of some version data.
func versionKey(p storage.KeyPrefix, version uint64) []byte {
	key := make([]byte, 9)
	key[0] = byte(p)
	binary.BigEndian.PutUint64(key[1:], version)
	return key
}
