package storage

import (
	"errors"
	"fmt"

	"github.com/lrmpt/lrmpt/pkg/core/storage/dbconfig"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

// KeyPrefix constants.
const (
	// DataMPT is used for MPT node entries identified by Uint256.
	DataMPT KeyPrefix = 0x03
	// DataMPTAux is used to store additional MPT data like roots of
	// published versions.
	DataMPTAux KeyPrefix = 0x04
	// DataMPTLog is used to store operations applied by published versions.
	DataMPTLog KeyPrefix = 0x05
	// SYSVersion is used to store the storage schema version.
	SYSVersion KeyPrefix = 0xf0
)

// MaxStorageValueLen is the maximum length of a value stored in the trie.
// It is set to be the maximum value for uint16.
const MaxStorageValueLen = 65535

// SeekRange represents options for Store.Seek operation.
type SeekRange struct {
	// Prefix denotes the Seek's lookup key.
	// Empty Prefix means seeking through all keys in the DB starting from
	// the Start if specified.
	Prefix []byte
	// Start denotes value appended to the Prefix to start Seek from.
	// Seeking starting from some key includes this key to the result;
	// if no matching key was found then next suitable key is picked up.
	// Start may be empty. Empty Start means seeking through all keys in
	// the DB with matching Prefix.
	Start []byte
	// Backwards denotes whether Seek direction should be reversed, i.e.
	// whether seeking should be performed in a descending way.
	// Backwards can be safely combined with Prefix and Start.
	Backwards bool
}

// KeyValue represents key-value pair.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// ErrKeyNotFound is an error returned by Store implementations
// when a certain key is not found.
var ErrKeyNotFound = errors.New("key not found")

type (
	// Store is the underlying KV backend for trie nodes. Implementations
	// must be safe for concurrent use: readers call Get while the writer
	// calls PutChangeSet.
	Store interface {
		Get([]byte) ([]byte, error)
		Put(k, v []byte) error
		// PutChangeSet allows to push prepared changeset to the Store, nil
		// values denote deletions.
		PutChangeSet(puts map[string][]byte) error
		// Seek can guarantee that provided key (k) and value (v) are the only valid until the next call to f.
		// Seek continues iteration until false is returned from f.
		// Key and value slices should not be modified.
		// Seek can guarantee that key-value items are sorted by key in ascending way.
		Seek(rng SeekRange, f func(k, v []byte) bool)
		Close() error
	}

	// KeyPrefix is a constant byte added as a prefix for each key
	// stored.
	KeyPrefix uint8
)

// Bytes returns the bytes representation of KeyPrefix.
func (k KeyPrefix) Bytes() []byte {
	return []byte{byte(k)}
}

func seekRangeToPrefixes(sr SeekRange) *util.Range {
	var (
		rang  *util.Range
		start = make([]byte, len(sr.Prefix)+len(sr.Start))
	)
	copy(start, sr.Prefix)
	copy(start[len(sr.Prefix):], sr.Start)

	if !sr.Backwards {
		rang = util.BytesPrefix(sr.Prefix)
		rang.Start = start
	} else {
		rang = util.BytesPrefix(start)
		rang.Start = sr.Prefix
	}
	return rang
}

// NewStore creates storage with preselected in configuration database type.
// The logger is used by stores that can't return some errors, it may be nil.
func NewStore(cfg dbconfig.DBConfiguration, log *zap.Logger) (Store, error) {
	var store Store
	var err error
	switch cfg.Type {
	case dbconfig.LevelDB:
		store, err = NewLevelDBStore(cfg.LevelDBOptions)
	case dbconfig.InMemoryDB, "":
		store = NewMemoryStore()
	case dbconfig.BoltDB:
		store, err = NewBoltDBStore(cfg.BoltDBOptions)
	case dbconfig.S3DB:
		store, err = NewS3Store(cfg.S3Options, log)
	default:
		return nil, fmt.Errorf("unknown storage: %s", cfg.Type)
	}
	return store, err
}
