package host

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"

	"escrowledger/core/state"
	"escrowledger/core/types"
	"escrowledger/native/escrow"
	"escrowledger/observability/logging"
)

// Operation names used for quotas, metrics, spans and logs.
const (
	OpInitialize        = "initialize"
	OpCredit            = "credit"
	OpAdvance           = "advance"
	OpCreate            = "create"
	OpDeposit           = "deposit"
	OpConfirm           = "confirm"
	OpDispute           = "dispute"
	OpSettle            = "settle"
	OpRefund            = "refund"
	OpJoinArbiters      = "join-arbiters"
	OpUpdateProfile     = "update-profile"
	OpToggleStatus      = "toggle-status"
	OpPause             = "pause"
	OpUnpause           = "unpause"
	OpEmergency         = "emergency"
	OpClearEmergency    = "clear-emergency"
	OpSetSystemFee      = "set-system-fee"
	OpSetFeeCollector   = "set-fee-collector"
	OpTransferOwnership = "transfer-ownership"
)

func (x *Executor) call(ctx context.Context, op string, caller [20]byte, fn func(*escrow.Engine) error) error {
	return x.run(ctx, op, &caller, 1, func(engine *escrow.Engine, _ *state.Manager) error {
		return fn(engine)
	})
}

// Initialize sets the owner and fee collector of a fresh ledger.
func (x *Executor) Initialize(ctx context.Context, owner, feeCollector [20]byte) error {
	return x.Execute(ctx, OpInitialize, func(e *escrow.Engine) error {
		return e.Initialize(owner, feeCollector)
	})
}

// Credit mints amount into addr. It backs the development faucet.
func (x *Executor) Credit(ctx context.Context, addr [20]byte, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("host: credit amount must be positive")
	}
	return x.run(ctx, OpCredit, nil, 1, func(_ *escrow.Engine, mgr *state.Manager) error {
		return state.NewBank(mgr).Credit(addr, amount)
	})
}

// Advance moves the clock forward by blocks without touching escrow state.
func (x *Executor) Advance(ctx context.Context, blocks uint64) error {
	if blocks == 0 {
		return nil
	}
	return x.run(ctx, OpAdvance, nil, blocks, func(*escrow.Engine, *state.Manager) error { return nil })
}

// Balance returns the account view of addr.
func (x *Executor) Balance(ctx context.Context, addr [20]byte) (types.Account, error) {
	account := types.Account{Address: addr}
	if err := ctx.Err(); err != nil {
		return account, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	tx := state.Begin(x.db)
	defer tx.Discard()
	balance, err := state.NewBank(state.NewManager(tx)).BalanceOf(addr)
	if err != nil {
		return account, err
	}
	account.Balance = balance
	return account, nil
}

func (x *Executor) NewEscrow(ctx context.Context, caller, buyer, seller, arbiter [20]byte, amount *uint256.Int, duration *uint64, metadata *string) (uint64, error) {
	var id uint64
	err := x.call(ctx, OpCreate, caller, func(e *escrow.Engine) error {
		var err error
		id, err = e.NewEscrow(caller, buyer, seller, arbiter, amount, duration, metadata)
		return err
	})
	if err == nil && metadata != nil {
		x.logger.DebugContext(ctx, "escrow created", "escrow_id", id, logging.MaskField("metadata", *metadata))
	}
	return id, err
}

func (x *Executor) DepositFunds(ctx context.Context, caller [20]byte, id uint64) error {
	return x.call(ctx, OpDeposit, caller, func(e *escrow.Engine) error {
		return e.DepositFunds(caller, id)
	})
}

// MarkComplete records the caller's confirmation and reports whether the
// escrow was released as a result.
func (x *Executor) MarkComplete(ctx context.Context, caller [20]byte, id uint64) (bool, error) {
	var released bool
	err := x.call(ctx, OpConfirm, caller, func(e *escrow.Engine) error {
		var err error
		released, err = e.MarkComplete(caller, id)
		return err
	})
	return released, err
}

func (x *Executor) RaiseDispute(ctx context.Context, caller [20]byte, id uint64, reason string) error {
	err := x.call(ctx, OpDispute, caller, func(e *escrow.Engine) error {
		return e.RaiseDispute(caller, id, reason)
	})
	if err == nil {
		x.logger.InfoContext(ctx, "escrow disputed", "escrow_id", id, logging.MaskField("reason", reason))
	}
	return err
}

func (x *Executor) SettleDispute(ctx context.Context, caller [20]byte, id uint64, buyerBps uint32) error {
	return x.call(ctx, OpSettle, caller, func(e *escrow.Engine) error {
		return e.SettleDispute(caller, id, buyerBps)
	})
}

func (x *Executor) ProcessRefund(ctx context.Context, caller [20]byte, id uint64) error {
	return x.call(ctx, OpRefund, caller, func(e *escrow.Engine) error {
		return e.ProcessRefund(caller, id)
	})
}

func (x *Executor) JoinArbiters(ctx context.Context, caller [20]byte, name string, feeBps uint32) error {
	return x.call(ctx, OpJoinArbiters, caller, func(e *escrow.Engine) error {
		return e.JoinArbiters(caller, name, feeBps)
	})
}

func (x *Executor) UpdateProfile(ctx context.Context, caller [20]byte, name *string, feeBps *uint32) error {
	return x.call(ctx, OpUpdateProfile, caller, func(e *escrow.Engine) error {
		return e.UpdateProfile(caller, name, feeBps)
	})
}

// ToggleStatus flips the caller's arbiter availability and returns the new
// value.
func (x *Executor) ToggleStatus(ctx context.Context, caller [20]byte) (bool, error) {
	var active bool
	err := x.call(ctx, OpToggleStatus, caller, func(e *escrow.Engine) error {
		var err error
		active, err = e.ToggleStatus(caller)
		return err
	})
	return active, err
}

// Admin operations are not charged against the caller quota so an operator
// can always pause a ledger under load.

func (x *Executor) admin(ctx context.Context, op string, caller [20]byte, fn func(*escrow.Engine) error) error {
	err := x.Execute(ctx, op, fn)
	if err == nil {
		x.logger.InfoContext(ctx, "escrow admin action", "op", op, "caller", hex.EncodeToString(caller[:]))
	}
	return err
}

func (x *Executor) SetPaused(ctx context.Context, caller [20]byte) error {
	return x.admin(ctx, OpPause, caller, func(e *escrow.Engine) error { return e.SetPaused(caller) })
}

func (x *Executor) ClearPaused(ctx context.Context, caller [20]byte) error {
	return x.admin(ctx, OpUnpause, caller, func(e *escrow.Engine) error { return e.ClearPaused(caller) })
}

func (x *Executor) TriggerEmergency(ctx context.Context, caller [20]byte) error {
	return x.admin(ctx, OpEmergency, caller, func(e *escrow.Engine) error { return e.TriggerEmergency(caller) })
}

func (x *Executor) ClearEmergency(ctx context.Context, caller [20]byte) error {
	return x.admin(ctx, OpClearEmergency, caller, func(e *escrow.Engine) error { return e.ClearEmergency(caller) })
}

func (x *Executor) SetSystemFee(ctx context.Context, caller [20]byte, feeBps uint32) error {
	return x.admin(ctx, OpSetSystemFee, caller, func(e *escrow.Engine) error { return e.SetSystemFee(caller, feeBps) })
}

func (x *Executor) SetFeeCollector(ctx context.Context, caller, collector [20]byte) error {
	return x.admin(ctx, OpSetFeeCollector, caller, func(e *escrow.Engine) error {
		return e.SetFeeCollector(caller, collector)
	})
}

func (x *Executor) TransferOwnership(ctx context.Context, caller, newOwner [20]byte) error {
	return x.admin(ctx, OpTransferOwnership, caller, func(e *escrow.Engine) error {
		return e.TransferOwnership(caller, newOwner)
	})
}
