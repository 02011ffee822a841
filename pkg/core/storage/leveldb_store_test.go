package storage

import (
	"testing"

	"github.com/lrmpt/lrmpt/pkg/core/storage/dbconfig"
	"github.com/stretchr/testify/require"
)

func newLevelDBForTesting(t testing.TB) Store {
	ldbDir := t.TempDir()
	dbConfig := dbconfig.DBConfiguration{
		Type: dbconfig.LevelDB,
		LevelDBOptions: dbconfig.LevelDBOptions{
			DataDirectoryPath: ldbDir,
		},
	}
	newLevelStore, err := NewLevelDBStore(dbConfig.LevelDBOptions)
	require.Nil(t, err, "NewLevelDBStore error")
	return newLevelStore
}

func TestLevelDBStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLevelDBStore(dbconfig.LevelDBOptions{DataDirectoryPath: dir})
	require.NoError(t, err)
	require.NoError(t, s.PutChangeSet(map[string][]byte{"k": []byte("v")}))
	require.NoError(t, s.Close())

	s, err = NewLevelDBStore(dbconfig.LevelDBOptions{DataDirectoryPath: dir, ReadOnly: true})
	require.NoError(t, err)
	v, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
	require.NoError(t, s.Close())
}
