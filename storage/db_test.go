package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	value, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)

	has, err := db.Has([]byte("a"))
	require.NoError(t, err)
	require.True(t, has)

	batch := NewBatch()
	batch.Put([]byte("b"), []byte("2"))
	batch.Put([]byte("c"), []byte("3"))
	batch.Delete([]byte("a"))
	require.Equal(t, 3, batch.Len())
	require.NoError(t, db.Write(batch))

	has, err = db.Has([]byte("a"))
	require.NoError(t, err)
	require.False(t, has)
	for key, want := range map[string]string{"b": "2", "c": "3"} {
		got, err := db.Get([]byte(key))
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}

	require.NoError(t, db.Write(nil))
	require.NoError(t, db.Write(NewBatch()))
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
	require.Equal(t, 2, db.Len())
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("original")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'X'

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	got[1] = 'Y'

	again, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "original", string(again))
}

func TestBatchCopiesInput(t *testing.T) {
	key := []byte("k")
	value := []byte("v")
	batch := NewBatch()
	batch.Put(key, value)
	key[0], value[0] = 'x', 'x'

	db := NewMemDB()
	require.NoError(t, db.Write(batch))
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v", string(got))
}

func TestLevelDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := NewLevelDB(path)
	require.NoError(t, err)
	exerciseDatabase(t, db)
	db.Close()

	reopened, err := NewLevelDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get([]byte("c"))
	require.NoError(t, err)
	require.Equal(t, "3", string(got))
}
