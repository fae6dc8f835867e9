package escrow

import (
	"fmt"

	"github.com/holiman/uint256"
)

// storage abstracts the subset of state manager functionality required by the
// registries. Values are RLP encoded by the implementation.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	globalsKey = []byte("escrow/globals")
	statsKey   = []byte("escrow/stats")
)

func escrowKey(id uint64) []byte { return []byte(fmt.Sprintf("escrow/record/%d", id)) }

func depositKey(id uint64) []byte { return []byte(fmt.Sprintf("escrow/deposit/%d", id)) }

func custodyKey(id uint64) []byte { return []byte(fmt.Sprintf("escrow/custody/%d", id)) }

func sequenceKey(id uint64) []byte { return []byte(fmt.Sprintf("escrow/seq/%d", id)) }

func historyKey(id, seq uint64) []byte {
	return []byte(fmt.Sprintf("escrow/history/%d/%d", id, seq))
}

func roleKey(id uint64, addr [20]byte) []byte {
	return []byte(fmt.Sprintf("escrow/role/%d/%x", id, addr))
}

func arbiterKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("escrow/arbiter/%x", addr))
}

// Stored records carry explicit presence flags for optional fields; RLP
// cannot distinguish a nil pointer from a zero value.

type storedEscrow struct {
	ID               uint64
	Creator          [20]byte
	Buyer            [20]byte
	Seller           [20]byte
	Arbiter          [20]byte
	Amount           *uint256.Int
	ArbiterFeeBps    uint32
	Status           uint8
	CreatedAt        uint64
	HasExpiry        bool
	ExpiresAt        uint64
	BuyerConfirmed   bool
	SellerConfirmed  bool
	FundedAmount     *uint256.Int
	HasDisputeReason bool
	DisputeReason    string
	LastActivity     uint64
	HasMetadata      bool
	Metadata         string
}

func newStoredEscrow(e *Escrow) *storedEscrow {
	s := &storedEscrow{
		ID:              e.ID,
		Creator:         e.Creator,
		Buyer:           e.Buyer,
		Seller:          e.Seller,
		Arbiter:         e.Arbiter,
		Amount:          cloneAmount(e.Amount),
		ArbiterFeeBps:   e.ArbiterFeeBps,
		Status:          uint8(e.Status),
		CreatedAt:       e.CreatedAt,
		BuyerConfirmed:  e.BuyerConfirmed,
		SellerConfirmed: e.SellerConfirmed,
		FundedAmount:    cloneAmount(e.FundedAmount),
		LastActivity:    e.LastActivity,
	}
	if e.ExpiresAt != nil {
		s.HasExpiry = true
		s.ExpiresAt = *e.ExpiresAt
	}
	if e.DisputeReason != nil {
		s.HasDisputeReason = true
		s.DisputeReason = *e.DisputeReason
	}
	if e.Metadata != nil {
		s.HasMetadata = true
		s.Metadata = *e.Metadata
	}
	return s
}

func (s *storedEscrow) escrow() *Escrow {
	e := &Escrow{
		ID:              s.ID,
		Creator:         s.Creator,
		Buyer:           s.Buyer,
		Seller:          s.Seller,
		Arbiter:         s.Arbiter,
		Amount:          cloneAmount(s.Amount),
		ArbiterFeeBps:   s.ArbiterFeeBps,
		Status:          Status(s.Status),
		CreatedAt:       s.CreatedAt,
		BuyerConfirmed:  s.BuyerConfirmed,
		SellerConfirmed: s.SellerConfirmed,
		FundedAmount:    cloneAmount(s.FundedAmount),
		LastActivity:    s.LastActivity,
	}
	if s.HasExpiry {
		v := s.ExpiresAt
		e.ExpiresAt = &v
	}
	if s.HasDisputeReason {
		v := s.DisputeReason
		e.DisputeReason = &v
	}
	if s.HasMetadata {
		v := s.Metadata
		e.Metadata = &v
	}
	return e
}

type storedHistoryEvent struct {
	EscrowID  uint64
	Sequence  uint64
	Action    string
	Actor     [20]byte
	Timestamp uint64
	HasDetail bool
	Detail    string
	PrevHash  [32]byte
	Hash      [32]byte
}

func (s *storedHistoryEvent) event() *HistoryEvent {
	evt := &HistoryEvent{
		EscrowID:  s.EscrowID,
		Sequence:  s.Sequence,
		Action:    s.Action,
		Actor:     s.Actor,
		Timestamp: s.Timestamp,
		PrevHash:  s.PrevHash,
		Hash:      s.Hash,
	}
	if s.HasDetail {
		v := s.Detail
		evt.Detail = &v
	}
	return evt
}

type storedRole struct {
	Role     uint8
	JoinedAt uint64
}

type storedGlobals struct {
	Initialized  bool
	Owner        [20]byte
	FeeCollector [20]byte
	NextID       uint64
	Paused       bool
	Emergency    bool
	SystemFeeBps uint32
}

type storedStats struct {
	TotalEscrows uint64
	TotalVolume  *uint256.Int
	Completed    uint64
	Disputed     uint64
	Resolved     uint64
	Refunded     uint64
	ProtocolFees *uint256.Int
	ArbiterFees  *uint256.Int
}

// registry wraps the KV store with typed accessors for every escrow record.
type registry struct {
	store storage
}

func (r registry) ready() error {
	if r.store == nil {
		return errNilState
	}
	return nil
}

func (r registry) getEscrow(id uint64) (*Escrow, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	var stored storedEscrow
	ok, err := r.store.KVGet(escrowKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.escrow(), true, nil
}

func (r registry) putEscrow(e *Escrow) error {
	if err := r.ready(); err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("escrow: nil escrow")
	}
	if !e.Status.Valid() {
		return fmt.Errorf("escrow: invalid status %d", e.Status)
	}
	return r.store.KVPut(escrowKey(e.ID), newStoredEscrow(e))
}

func (r registry) getDeposit(id uint64) (*Deposit, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	var stored Deposit
	ok, err := r.store.KVGet(depositKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	stored.Amount = cloneAmount(stored.Amount)
	return &stored, true, nil
}

func (r registry) putDeposit(id uint64, d *Deposit) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.store.KVPut(depositKey(id), &Deposit{
		Depositor: d.Depositor,
		Amount:    cloneAmount(d.Amount),
		Timestamp: d.Timestamp,
	})
}

func (r registry) getRole(id uint64, addr [20]byte) (*ParticipantRole, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	var stored storedRole
	ok, err := r.store.KVGet(roleKey(id, addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &ParticipantRole{Role: Role(stored.Role), JoinedAt: stored.JoinedAt}, true, nil
}

func (r registry) putRole(id uint64, addr [20]byte, role Role, joinedAt uint64) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.store.KVPut(roleKey(id, addr), &storedRole{Role: uint8(role), JoinedAt: joinedAt})
}

func (r registry) getArbiter(addr [20]byte) (*ArbiterProfile, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	var stored ArbiterProfile
	ok, err := r.store.KVGet(arbiterKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &stored, true, nil
}

func (r registry) putArbiter(p *ArbiterProfile) error {
	if err := r.ready(); err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("escrow: nil arbiter profile")
	}
	return r.store.KVPut(arbiterKey(p.Address), p)
}

func (r registry) getSequence(id uint64) (uint64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	var seq uint64
	if _, err := r.store.KVGet(sequenceKey(id), &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (r registry) putSequence(id, seq uint64) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.store.KVPut(sequenceKey(id), seq)
}

func (r registry) getHistory(id, seq uint64) (*HistoryEvent, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	var stored storedHistoryEvent
	ok, err := r.store.KVGet(historyKey(id, seq), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.event(), true, nil
}

func (r registry) putHistory(evt *storedHistoryEvent) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.store.KVPut(historyKey(evt.EscrowID, evt.Sequence), evt)
}

func (r registry) getCustody(id uint64) (*uint256.Int, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	balance := new(uint256.Int)
	ok, err := r.store.KVGet(custodyKey(id), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return balance, nil
}

func (r registry) putCustody(id uint64, balance *uint256.Int) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.store.KVPut(custodyKey(id), cloneAmount(balance))
}

func (r registry) getGlobals() (*storedGlobals, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var g storedGlobals
	if _, err := r.store.KVGet(globalsKey, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r registry) putGlobals(g *storedGlobals) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.store.KVPut(globalsKey, g)
}

func (r registry) getStats() (*storedStats, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var s storedStats
	if _, err := r.store.KVGet(statsKey, &s); err != nil {
		return nil, err
	}
	s.TotalVolume = cloneAmount(s.TotalVolume)
	s.ProtocolFees = cloneAmount(s.ProtocolFees)
	s.ArbiterFees = cloneAmount(s.ArbiterFees)
	return &s, nil
}

func (r registry) putStats(s *storedStats) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.store.KVPut(statsKey, s)
}
