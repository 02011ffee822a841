/*
Package dbconfig is a micropackage that contains storage DB configuration options.
*/
package dbconfig

// Supported database types.
const (
	// InMemoryDB keeps everything in process memory, not recommended for
	// anything but tests and short-lived tools.
	InMemoryDB = "inmemory"
	// LevelDB is a goleveldb-backed store.
	LevelDB = "leveldb"
	// BoltDB is a bbolt-backed single-file store.
	BoltDB = "boltdb"
	// S3DB keeps every entry as a separate object in an S3 bucket.
	S3DB = "s3"
)

type (
	// DBConfiguration describes configuration for DB. Supported types:
	// [LevelDB], [BoltDB], [S3DB] or [InMemoryDB].
	DBConfiguration struct {
		Type           string         `yaml:"Type"`
		LevelDBOptions LevelDBOptions `yaml:"LevelDBOptions"`
		BoltDBOptions  BoltDBOptions  `yaml:"BoltDBOptions"`
		S3Options      S3Options      `yaml:"S3Options"`
	}
	// LevelDBOptions configuration for LevelDB.
	LevelDBOptions struct {
		DataDirectoryPath string `yaml:"DataDirectoryPath"`
		ReadOnly          bool   `yaml:"ReadOnly"`
	}
	// BoltDBOptions configuration for BoltDB.
	BoltDBOptions struct {
		FilePath string `yaml:"FilePath"`
		ReadOnly bool   `yaml:"ReadOnly"`
	}
	// S3Options configuration for an S3-compatible object store. Credentials
	// are taken from the standard AWS environment/configuration chain.
	S3Options struct {
		Bucket         string `yaml:"Bucket"`
		Prefix         string `yaml:"Prefix"`
		Endpoint       string `yaml:"Endpoint"`
		Region         string `yaml:"Region"`
		ForcePathStyle bool   `yaml:"ForcePathStyle"`
		DisableSSL     bool   `yaml:"DisableSSL"`
	}
)
