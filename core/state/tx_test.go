package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"escrowledger/storage"
)

func TestTxReadsOwnWrites(t *testing.T) {
	db := storage.NewMemDB()
	require.NoError(t, db.Put([]byte("seed"), []byte("1")))

	tx := Begin(db)
	value, err := tx.Get([]byte("seed"))
	require.NoError(t, err)
	require.Equal(t, "1", string(value))

	missing, err := tx.Get([]byte("absent"))
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, tx.Update([]byte("seed"), []byte("2")))
	value, err = tx.Get([]byte("seed"))
	require.NoError(t, err)
	require.Equal(t, "2", string(value))
	require.Equal(t, 1, tx.Dirty())

	stored, err := db.Get([]byte("seed"))
	require.NoError(t, err)
	require.Equal(t, "1", string(stored), "writes must stay pending until commit")
}

func TestTxCommitAndDiscard(t *testing.T) {
	db := storage.NewMemDB()

	tx := Begin(db)
	require.NoError(t, tx.Update([]byte("a"), []byte("1")))
	require.NoError(t, tx.Update([]byte("b"), []byte("2")))
	require.NoError(t, tx.Commit())
	require.Equal(t, 2, db.Len())

	require.ErrorIs(t, tx.Commit(), ErrTxClosed)
	require.ErrorIs(t, tx.Update([]byte("c"), nil), ErrTxClosed)
	_, err := tx.Get([]byte("a"))
	require.ErrorIs(t, err, ErrTxClosed)

	dropped := Begin(db)
	require.NoError(t, dropped.Update([]byte("c"), []byte("3")))
	dropped.Discard()
	dropped.Discard()
	has, err := db.Has([]byte("c"))
	require.NoError(t, err)
	require.False(t, has)

	require.Error(t, Begin(db).Update(nil, []byte("x")))
}

func TestManagerKV(t *testing.T) {
	db := storage.NewMemDB()
	tx := Begin(db)
	mgr := NewManager(tx)

	type record struct {
		Name  string
		Count uint64
	}
	var out record
	ok, err := mgr.KVGet([]byte("escrow/record/1"), &out)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.KVPut([]byte("escrow/record/1"), &record{Name: "x", Count: 3}))
	ok, err = mgr.KVGet([]byte("escrow/record/1"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record{Name: "x", Count: 3}, out)

	ok, err = mgr.KVGet([]byte("escrow/record/1"), nil)
	require.NoError(t, err)
	require.True(t, ok)

	require.Error(t, mgr.KVPut(nil, 1))
	_, err = mgr.KVGet(nil, &out)
	require.Error(t, err)

	require.NoError(t, tx.Commit())
	has, err := db.Has(kvKey([]byte("escrow/record/1")))
	require.NoError(t, err)
	require.True(t, has, "keys are stored hashed")
}
