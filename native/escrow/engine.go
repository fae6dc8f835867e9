package escrow

import (
	"errors"
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"escrowledger/core/events"
	"escrowledger/core/types"
	nativecommon "escrowledger/native/common"
)

// ModuleName identifies the escrow module to pause views.
const ModuleName = "escrow"

// DefaultCustodyAddress is the identity that holds escrowed funds between
// deposit and distribution.
var DefaultCustodyAddress = deriveAddress("escrowledger/custody")

func deriveAddress(seed string) [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte(seed))[12:])
	return addr
}

// Transferer is the value transfer primitive. Transfer must be atomic and
// fail closed: on error no balance has moved. Implementations should wrap
// ErrInsufficientBalance when the sender cannot cover amount.
type Transferer interface {
	Transfer(from, to [20]byte, amount *uint256.Int) error
}

// Engine wires the escrow business logic with external state, the transfer
// primitive and event emitters. Every public method is one transition; the
// host is expected to run each call inside its own atomic transaction.
type Engine struct {
	reg     registry
	bank    Transferer
	emitter events.Emitter
	pauses  nativecommon.PauseView
	params  Params
	custody [20]byte
	nowFn   func() uint64
}

// NewEngine creates an escrow engine with default parameters and a no-op
// emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		params:  DefaultParams(),
		custody: DefaultCustodyAddress,
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState configures the registry backend used by the engine.
func (e *Engine) SetState(state storage) { e.reg = registry{store: state} }

// SetTransferer configures the value transfer primitive.
func (e *Engine) SetTransferer(t Transferer) { e.bank = t }

// SetParams replaces the input limits.
func (e *Engine) SetParams(p Params) { e.params = p }

// Params returns the active input limits.
func (e *Engine) Params() Params { return e.params }

// SetCustodyAddress overrides the engine's own identity.
func (e *Engine) SetCustodyAddress(addr [20]byte) { e.custody = addr }

// CustodyAddress returns the engine's own identity.
func (e *Engine) CustodyAddress() [20]byte { return e.custody }

// SetPauses installs an additional pause view consulted alongside the
// engine's own pause and emergency flags.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the logical clock. The host passes the block height.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil {
		return errNilState
	}
	return e.reg.ready()
}

// IsPaused implements nativecommon.PauseView from the stored flags. Emergency
// mode always implies paused.
func (e *Engine) IsPaused(module string) (bool, error) {
	if module != ModuleName {
		return false, nil
	}
	g, err := e.reg.getGlobals()
	if err != nil {
		return false, err
	}
	return g.Paused || g.Emergency, nil
}

func (e *Engine) guardPaused() error {
	for _, view := range []nativecommon.PauseView{e, e.pauses} {
		if view == nil {
			continue
		}
		if err := nativecommon.Guard(view, ModuleName); err != nil {
			if errors.Is(err, nativecommon.ErrModulePaused) {
				return fmt.Errorf("%w: %w", ErrContractPaused, err)
			}
			return err
		}
	}
	return nil
}

// guardRunning rejects lifecycle and directory operations while the system
// is paused or before Initialize has configured an owner and fee collector.
func (e *Engine) guardRunning() error {
	if err := e.guardPaused(); err != nil {
		return err
	}
	g, err := e.reg.getGlobals()
	if err != nil {
		return err
	}
	if !g.Initialized {
		return fmt.Errorf("%w: engine not initialised", ErrInvalidState)
	}
	return nil
}

func (e *Engine) loadEscrow(id uint64) (*Escrow, error) {
	esc, ok, err := e.reg.getEscrow(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: escrow %d", ErrNotFound, id)
	}
	return esc, nil
}

// loadMutable runs the guards shared by every escrow transition: the system
// is initialised and running, the escrow exists and has not reached a terminal status.
func (e *Engine) loadMutable(id uint64) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.guardRunning(); err != nil {
		return nil, err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status.Terminal() {
		return nil, fmt.Errorf("%w: escrow %d is %s", ErrInvalidState, id, esc.Status)
	}
	return esc, nil
}

func (e *Engine) transfer(from, to [20]byte, amount *uint256.Int, leg string) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if e.bank == nil {
		return errNilBank
	}
	if err := e.bank.Transfer(from, to, amount); err != nil {
		return fmt.Errorf("escrow: %s transfer of %s: %w", leg, amount.Dec(), err)
	}
	return nil
}

// escrowCredit adds amount to the per-escrow custody ledger.
func (e *Engine) escrowCredit(id uint64, amount *uint256.Int) error {
	current, err := e.reg.getCustody(id)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return fmt.Errorf("%w: custody overflow", ErrInvalidParams)
	}
	return e.reg.putCustody(id, next)
}

// escrowDebit removes amount from the per-escrow custody ledger, failing
// rather than underflowing.
func (e *Engine) escrowDebit(id uint64, amount *uint256.Int) error {
	current, err := e.reg.getCustody(id)
	if err != nil {
		return err
	}
	if current.Lt(amount) {
		return fmt.Errorf("%w: custody for escrow %d holds %s, need %s", ErrInsufficientBalance, id, current.Dec(), amount.Dec())
	}
	return e.reg.putCustody(id, new(uint256.Int).Sub(current, amount))
}

func (e *Engine) updateStats(fn func(*storedStats) error) error {
	stats, err := e.reg.getStats()
	if err != nil {
		return err
	}
	if err := fn(stats); err != nil {
		return err
	}
	return e.reg.putStats(stats)
}

func addAmount(dst **uint256.Int, amount *uint256.Int) error {
	sum, overflow := new(uint256.Int).AddOverflow(cloneAmount(*dst), cloneAmount(amount))
	if overflow {
		return fmt.Errorf("escrow: aggregate overflow")
	}
	*dst = sum
	return nil
}

func detail(format string, args ...interface{}) *string {
	s := fmt.Sprintf(format, args...)
	return &s
}

// NewEscrow registers a new escrow between buyer and seller, adjudicated by
// arbiter, and returns its identifier. duration and metadata are optional.
func (e *Engine) NewEscrow(caller, buyer, seller, arbiter [20]byte, amount *uint256.Int, duration *uint64, metadata *string) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := e.guardRunning(); err != nil {
		return 0, err
	}
	if err := e.params.ValidateAmount(amount); err != nil {
		return 0, err
	}
	if err := ValidateParticipants(buyer, seller, arbiter, e.custody); err != nil {
		return 0, err
	}
	profile, ok, err := e.reg.getArbiter(arbiter)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %x is not a registered arbiter", ErrNotActive, arbiter)
	}
	if !profile.Active {
		return 0, fmt.Errorf("%w: arbiter %x is inactive", ErrNotActive, arbiter)
	}
	if err := e.params.ValidateDuration(duration); err != nil {
		return 0, err
	}
	if err := e.params.ValidateMetadata(metadata); err != nil {
		return 0, err
	}

	now := e.now()
	expiresAt, err := ExpiryFor(now, duration)
	if err != nil {
		return 0, err
	}
	globals, err := e.reg.getGlobals()
	if err != nil {
		return 0, err
	}
	if globals.NextID == 0 {
		globals.NextID = 1
	}
	id := globals.NextID
	globals.NextID++

	esc := &Escrow{
		ID:            id,
		Creator:       caller,
		Buyer:         buyer,
		Seller:        seller,
		Arbiter:       arbiter,
		Amount:        cloneAmount(amount),
		ArbiterFeeBps: profile.FeeBps,
		Status:        StatusCreated,
		CreatedAt:     now,
		ExpiresAt:     expiresAt,
		FundedAmount:  new(uint256.Int),
		LastActivity:  now,
	}
	if metadata != nil {
		m := *metadata
		esc.Metadata = &m
	}
	if err := e.reg.putEscrow(esc); err != nil {
		return 0, err
	}
	if err := e.reg.putGlobals(globals); err != nil {
		return 0, err
	}
	roles := []struct {
		addr [20]byte
		role Role
	}{{buyer, RoleBuyer}, {seller, RoleSeller}, {arbiter, RoleArbiter}}
	for _, r := range roles {
		if err := e.reg.putRole(id, r.addr, r.role, now); err != nil {
			return 0, err
		}
	}
	if _, err := e.appendHistory(id, ActionCreated, caller, detail("amount=%s", esc.Amount.Dec())); err != nil {
		return 0, err
	}
	if err := e.updateStats(func(s *storedStats) error {
		s.TotalEscrows++
		return nil
	}); err != nil {
		return 0, err
	}
	e.emit(NewEscrowEvent(EventTypeEscrowCreated, esc))
	return id, nil
}

// DepositFunds moves the full escrow amount from the caller into custody and
// marks the escrow funded. Either buyer or seller may fund, exactly once.
func (e *Engine) DepositFunds(caller [20]byte, id uint64) error {
	esc, err := e.loadMutable(id)
	if err != nil {
		return err
	}
	if !esc.isParty(caller) {
		return fmt.Errorf("%w: only buyer or seller may fund escrow %d", ErrAccessDenied, id)
	}
	if _, funded, err := e.reg.getDeposit(id); err != nil {
		return err
	} else if funded || !esc.FundedAmount.IsZero() {
		return fmt.Errorf("%w: escrow %d already funded", ErrAlreadyExists, id)
	}
	if esc.Status != StatusCreated {
		return fmt.Errorf("%w: cannot fund escrow in status %s", ErrInvalidState, esc.Status)
	}
	now := e.now()
	if IsExpired(esc.ExpiresAt, now) {
		return fmt.Errorf("%w: escrow %d expired at %d", ErrExpired, id, *esc.ExpiresAt)
	}
	amount := cloneAmount(esc.Amount)
	if err := e.transfer(caller, e.custody, amount, "deposit"); err != nil {
		return err
	}
	if err := e.escrowCredit(id, amount); err != nil {
		return err
	}
	if err := e.reg.putDeposit(id, &Deposit{Depositor: caller, Amount: amount, Timestamp: now}); err != nil {
		return err
	}
	esc.Status = StatusFunded
	esc.FundedAmount = cloneAmount(amount)
	esc.LastActivity = now
	if err := e.reg.putEscrow(esc); err != nil {
		return err
	}
	if _, err := e.appendHistory(id, ActionFunded, caller, detail("amount=%s", amount.Dec())); err != nil {
		return err
	}
	if err := e.updateStats(func(s *storedStats) error {
		return addAmount(&s.TotalVolume, amount)
	}); err != nil {
		return err
	}
	e.emit(NewEscrowEvent(EventTypeEscrowFunded, esc))
	return nil
}

// MarkComplete records the caller's confirmation. When both buyer and seller
// have confirmed, the escrow completes and the funds are paid out to the
// seller. The returned flag reports whether the payout happened.
func (e *Engine) MarkComplete(caller [20]byte, id uint64) (bool, error) {
	esc, err := e.loadMutable(id)
	if err != nil {
		return false, err
	}
	role, ok := esc.RoleOf(caller)
	if !ok || role == RoleArbiter {
		return false, fmt.Errorf("%w: only buyer or seller may confirm escrow %d", ErrAccessDenied, id)
	}
	if esc.Status != StatusFunded {
		return false, fmt.Errorf("%w: cannot confirm escrow in status %s", ErrInvalidState, esc.Status)
	}
	now := e.now()
	if IsExpired(esc.ExpiresAt, now) {
		return false, fmt.Errorf("%w: escrow %d expired at %d", ErrExpired, id, *esc.ExpiresAt)
	}
	switch role {
	case RoleBuyer:
		if esc.BuyerConfirmed {
			return false, fmt.Errorf("%w: buyer already confirmed escrow %d", ErrAlreadyExists, id)
		}
		esc.BuyerConfirmed = true
	case RoleSeller:
		if esc.SellerConfirmed {
			return false, fmt.Errorf("%w: seller already confirmed escrow %d", ErrAlreadyExists, id)
		}
		esc.SellerConfirmed = true
	}
	esc.LastActivity = now
	if _, err := e.appendHistory(id, ActionConfirmed, caller, detail("%s", role)); err != nil {
		return false, err
	}
	if !esc.BuyerConfirmed || !esc.SellerConfirmed {
		if err := e.reg.putEscrow(esc); err != nil {
			return false, err
		}
		e.emit(NewEscrowEvent(EventTypeEscrowConfirmed, esc))
		return false, nil
	}

	esc.Status = StatusCompleted
	payout, err := e.distributePayout(esc, caller)
	if err != nil {
		return false, err
	}
	if err := e.reg.putEscrow(esc); err != nil {
		return false, err
	}
	if err := e.updateStats(func(s *storedStats) error {
		s.Completed++
		return nil
	}); err != nil {
		return false, err
	}
	e.emit(NewEscrowEvent(EventTypeEscrowConfirmed, esc))
	e.emit(newPayoutEvent(EventTypeEscrowCompleted, esc, payout))
	return true, nil
}

// RaiseDispute moves a funded escrow into arbitration.
func (e *Engine) RaiseDispute(caller [20]byte, id uint64, reason string) error {
	esc, err := e.loadMutable(id)
	if err != nil {
		return err
	}
	if !esc.isParty(caller) {
		return fmt.Errorf("%w: only buyer or seller may dispute escrow %d", ErrAccessDenied, id)
	}
	if esc.Status != StatusFunded {
		return fmt.Errorf("%w: cannot dispute escrow in status %s", ErrInvalidState, esc.Status)
	}
	now := e.now()
	if IsExpired(esc.ExpiresAt, now) {
		return fmt.Errorf("%w: escrow %d expired at %d", ErrExpired, id, *esc.ExpiresAt)
	}
	if err := e.params.ValidateReason(reason); err != nil {
		return err
	}
	r := reason
	esc.Status = StatusDisputed
	esc.DisputeReason = &r
	esc.LastActivity = now
	if err := e.reg.putEscrow(esc); err != nil {
		return err
	}
	if _, err := e.appendHistory(id, ActionDisputed, caller, &r); err != nil {
		return err
	}
	if err := e.updateStats(func(s *storedStats) error {
		s.Disputed++
		return nil
	}); err != nil {
		return err
	}
	e.emit(NewEscrowEvent(EventTypeEscrowDisputed, esc))
	return nil
}

// SettleDispute lets the designated arbiter split a disputed escrow. buyerBps
// is the buyer's share of the post-fee remainder in basis points.
func (e *Engine) SettleDispute(caller [20]byte, id uint64, buyerBps uint32) error {
	esc, err := e.loadMutable(id)
	if err != nil {
		return err
	}
	if caller != esc.Arbiter {
		return fmt.Errorf("%w: only the designated arbiter may settle escrow %d", ErrAccessDenied, id)
	}
	if esc.Status != StatusDisputed {
		return fmt.Errorf("%w: cannot settle escrow in status %s", ErrInvalidState, esc.Status)
	}
	if buyerBps > PrecisionScale {
		return fmt.Errorf("%w: buyer share %d exceeds %d", ErrInvalidPercentage, buyerBps, PrecisionScale)
	}
	profile, ok, err := e.reg.getArbiter(esc.Arbiter)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: arbiter profile %x", ErrNotFound, esc.Arbiter)
	}

	now := e.now()
	esc.Status = StatusResolved
	esc.LastActivity = now
	settlement, err := e.distributeSettlement(esc, profile, buyerBps)
	if err != nil {
		return err
	}
	if err := e.reg.putEscrow(esc); err != nil {
		return err
	}

	profile.DisputesResolved++
	if buyerBps > buyerWinThreshold {
		profile.BuyerWins++
	} else {
		profile.SellerWins++
	}
	profile.Reputation += e.params.ReputationStep
	if profile.Reputation > e.params.MaxReputation {
		profile.Reputation = e.params.MaxReputation
	}
	profile.LastActivity = now
	if err := e.reg.putArbiter(profile); err != nil {
		return err
	}
	if err := e.updateStats(func(s *storedStats) error {
		s.Resolved++
		return nil
	}); err != nil {
		return err
	}
	e.emit(newSettlementEvent(esc, settlement, buyerBps))
	return nil
}

// ProcessRefund returns an escrow's deposit to the original depositor once
// it has expired, or cancels a still unfunded escrow at its creator's
// request.
func (e *Engine) ProcessRefund(caller [20]byte, id uint64) error {
	esc, err := e.loadMutable(id)
	if err != nil {
		return err
	}
	now := e.now()
	expired := IsExpired(esc.ExpiresAt, now)
	refunded := new(uint256.Int)
	var recipient [20]byte

	switch esc.Status {
	case StatusCreated:
		if caller != esc.Creator && !expired {
			return fmt.Errorf("%w: only the creator may cancel unfunded escrow %d", ErrAccessDenied, id)
		}
	case StatusFunded:
		if !expired {
			return fmt.Errorf("%w: escrow %d has not expired", ErrInvalidState, id)
		}
		deposit, ok, err := e.reg.getDeposit(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: deposit for escrow %d", ErrNotFound, id)
		}
		if err := e.escrowDebit(id, deposit.Amount); err != nil {
			return err
		}
		if err := e.transfer(e.custody, deposit.Depositor, deposit.Amount, "refund"); err != nil {
			return err
		}
		refunded = cloneAmount(deposit.Amount)
		recipient = deposit.Depositor
	case StatusDisputed:
		return fmt.Errorf("%w: disputed escrow %d must be settled by its arbiter", ErrInvalidState, id)
	case StatusCompleted, StatusResolved, StatusRefunded:
		return fmt.Errorf("%w: escrow %d is %s", ErrInvalidState, id, esc.Status)
	default:
		return fmt.Errorf("%w: unknown status %d", ErrInvalidState, esc.Status)
	}

	esc.Status = StatusRefunded
	esc.LastActivity = now
	if err := e.reg.putEscrow(esc); err != nil {
		return err
	}
	if _, err := e.appendHistory(id, ActionRefunded, caller, detail("amount=%s", refunded.Dec())); err != nil {
		return err
	}
	if err := e.updateStats(func(s *storedStats) error {
		s.Refunded++
		return nil
	}); err != nil {
		return err
	}
	e.emit(newRefundEvent(esc, recipient, refunded))
	return nil
}
