package types

import (
	"encoding/hex"
	"encoding/json"

	"github.com/holiman/uint256"
)

// Account is the balance view of a ledger identity.
type Account struct {
	Address [20]byte
	Balance *uint256.Int
}

type accountJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// MarshalJSON renders the address as hex and the balance in decimal.
func (a Account) MarshalJSON() ([]byte, error) {
	balance := "0"
	if a.Balance != nil {
		balance = a.Balance.Dec()
	}
	return json.Marshal(accountJSON{
		Address: hex.EncodeToString(a.Address[:]),
		Balance: balance,
	})
}
