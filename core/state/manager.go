package state

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// backend is the raw byte store the manager reads and writes. *Tx satisfies
// it; keys passed in are already hashed.
type backend interface {
	Get(key []byte) ([]byte, error)
	Update(key, value []byte) error
}

// Manager provides typed access to registry records stored in a backend.
// Every key is namespaced and hashed with keccak256 before it reaches the
// backend.
type Manager struct {
	store backend
}

// NewManager creates a state manager operating on the provided backend.
func NewManager(store backend) *Manager {
	return &Manager{store: store}
}

var balancePrefix = []byte("balance:")

func balanceKey(addr []byte) []byte {
	buf := make([]byte, len(balancePrefix)+len(addr))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// SetBalance stores the balance held by addr.
func (m *Manager) SetBalance(addr []byte, amount *uint256.Int) error {
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return m.store.Update(balanceKey(addr), encoded)
}

// Balance retrieves the balance held by addr. Unknown accounts hold zero.
func (m *Manager) Balance(addr []byte) (*uint256.Int, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("address must not be empty")
	}
	data, err := m.store.Get(balanceKey(addr))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return new(uint256.Int), nil
	}
	amount := new(uint256.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is automatically hashed with keccak256.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.store.Update(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.store.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
