package state

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrInsufficientFunds is returned when the sender cannot cover a transfer.
var ErrInsufficientFunds = errors.New("bank: insufficient funds")

// Bank moves balances between accounts held by a Manager. A transfer either
// updates both accounts or neither.
type Bank struct {
	state *Manager
}

// NewBank returns a bank bound to the manager's backend.
func NewBank(m *Manager) *Bank {
	return &Bank{state: m}
}

// Credit mints amount into addr. It is used to seed balances in tests and by
// the development faucet.
func (b *Bank) Credit(addr [20]byte, amount *uint256.Int) error {
	if b == nil || b.state == nil {
		return fmt.Errorf("bank: state not configured")
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	current, err := b.state.Balance(addr[:])
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return fmt.Errorf("bank: balance overflow")
	}
	return b.state.SetBalance(addr[:], next)
}

// BalanceOf returns the balance held by addr.
func (b *Bank) BalanceOf(addr [20]byte) (*uint256.Int, error) {
	if b == nil || b.state == nil {
		return nil, fmt.Errorf("bank: state not configured")
	}
	return b.state.Balance(addr[:])
}

// Transfer moves amount from one account to another. Both balances are
// validated before anything is written.
func (b *Bank) Transfer(from, to [20]byte, amount *uint256.Int) error {
	if b == nil || b.state == nil {
		return fmt.Errorf("bank: state not configured")
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	if from == to {
		return fmt.Errorf("bank: self transfer")
	}
	fromBal, err := b.state.Balance(from[:])
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromBal.Dec(), amount.Dec())
	}
	toBal, err := b.state.Balance(to[:])
	if err != nil {
		return err
	}
	nextTo, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return fmt.Errorf("bank: balance overflow")
	}
	nextFrom := new(uint256.Int).Sub(fromBal, amount)
	if err := b.state.SetBalance(from[:], nextFrom); err != nil {
		return err
	}
	return b.state.SetBalance(to[:], nextTo)
}
