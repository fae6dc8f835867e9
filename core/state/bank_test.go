package state

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"escrowledger/storage"
)

func newTestBank(t *testing.T) (*Bank, *Tx) {
	t.Helper()
	tx := Begin(storage.NewMemDB())
	return NewBank(NewManager(tx)), tx
}

func requireBalance(t *testing.T, bank *Bank, addr [20]byte, want uint64) {
	t.Helper()
	got, err := bank.BalanceOf(addr)
	require.NoError(t, err)
	require.Equal(t, want, got.Uint64())
}

func TestBankTransfer(t *testing.T) {
	bank, _ := newTestBank(t)
	alice := [20]byte{0xA1}
	bob := [20]byte{0xB0}

	requireBalance(t, bank, alice, 0)
	require.NoError(t, bank.Credit(alice, uint256.NewInt(500)))
	require.NoError(t, bank.Transfer(alice, bob, uint256.NewInt(200)))
	requireBalance(t, bank, alice, 300)
	requireBalance(t, bank, bob, 200)

	err := bank.Transfer(alice, bob, uint256.NewInt(301))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	requireBalance(t, bank, alice, 300)
	requireBalance(t, bank, bob, 200)

	require.NoError(t, bank.Transfer(alice, bob, new(uint256.Int)))
	require.Error(t, bank.Transfer(alice, alice, uint256.NewInt(1)))
}

func TestBankOverflow(t *testing.T) {
	bank, _ := newTestBank(t)
	rich := [20]byte{1}
	ceiling := new(uint256.Int).SetAllOne()
	require.NoError(t, bank.Credit(rich, ceiling))
	require.Error(t, bank.Credit(rich, uint256.NewInt(1)))

	other := [20]byte{2}
	require.NoError(t, bank.Credit(other, uint256.NewInt(1)))
	require.Error(t, bank.Transfer(other, rich, uint256.NewInt(1)))
	requireBalance(t, bank, other, 1)
}

func TestBankBalancesSurviveCommit(t *testing.T) {
	db := storage.NewMemDB()
	tx := Begin(db)
	addr := [20]byte{7}
	require.NoError(t, NewBank(NewManager(tx)).Credit(addr, uint256.NewInt(42)))
	require.NoError(t, tx.Commit())

	reader := NewBank(NewManager(Begin(db)))
	requireBalance(t, reader, addr, 42)
}
