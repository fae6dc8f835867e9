package escrow

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Status represents the lifecycle states of an escrow.
type Status uint8

const (
	StatusCreated Status = iota + 1
	StatusFunded
	StatusDisputed
	StatusCompleted
	StatusResolved
	StatusRefunded
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusFunded, StatusDisputed, StatusCompleted, StatusResolved, StatusRefunded:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusResolved, StatusRefunded:
		return true
	case StatusCreated, StatusFunded, StatusDisputed:
		return false
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusFunded:
		return "funded"
	case StatusDisputed:
		return "disputed"
	case StatusCompleted:
		return "completed"
	case StatusResolved:
		return "resolved"
	case StatusRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus converts a lifecycle tag back into a Status.
func ParseStatus(tag string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "created":
		return StatusCreated, nil
	case "funded":
		return StatusFunded, nil
	case "disputed":
		return StatusDisputed, nil
	case "completed":
		return StatusCompleted, nil
	case "resolved":
		return StatusResolved, nil
	case "refunded":
		return StatusRefunded, nil
	default:
		return 0, fmt.Errorf("%w: unknown status %q", ErrInvalidParams, tag)
	}
}

// Role is the part a participant plays in an escrow.
type Role uint8

const (
	RoleBuyer Role = iota + 1
	RoleSeller
	RoleArbiter
)

func (r Role) String() string {
	switch r {
	case RoleBuyer:
		return "buyer"
	case RoleSeller:
		return "seller"
	case RoleArbiter:
		return "arbiter"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Escrow is a single tracked transaction between buyer, seller and arbiter.
// Optional attributes are nil when absent. ArbiterFeeBps is the arbiter's
// rate when the escrow was opened and is replaced by the rate actually
// charged at payout.
type Escrow struct {
	ID              uint64
	Creator         [20]byte
	Buyer           [20]byte
	Seller          [20]byte
	Arbiter         [20]byte
	Amount          *uint256.Int
	ArbiterFeeBps   uint32
	Status          Status
	CreatedAt       uint64
	ExpiresAt       *uint64
	BuyerConfirmed  bool
	SellerConfirmed bool
	FundedAmount    *uint256.Int
	DisputeReason   *string
	LastActivity    uint64
	Metadata        *string
}

// Clone returns a deep copy of the escrow so callers can mutate the copy
// without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Amount = cloneAmount(e.Amount)
	clone.FundedAmount = cloneAmount(e.FundedAmount)
	if e.ExpiresAt != nil {
		v := *e.ExpiresAt
		clone.ExpiresAt = &v
	}
	if e.DisputeReason != nil {
		v := *e.DisputeReason
		clone.DisputeReason = &v
	}
	if e.Metadata != nil {
		v := *e.Metadata
		clone.Metadata = &v
	}
	return &clone
}

// RoleOf reports which participant role addr holds in the escrow.
func (e *Escrow) RoleOf(addr [20]byte) (Role, bool) {
	switch addr {
	case e.Buyer:
		return RoleBuyer, true
	case e.Seller:
		return RoleSeller, true
	case e.Arbiter:
		return RoleArbiter, true
	default:
		return 0, false
	}
}

func (e *Escrow) isParty(addr [20]byte) bool {
	return addr == e.Buyer || addr == e.Seller
}

// Deposit records who funded an escrow, used to route refunds.
type Deposit struct {
	Depositor [20]byte
	Amount    *uint256.Int
	Timestamp uint64
}

// ArbiterProfile describes a registered arbiter.
type ArbiterProfile struct {
	Address          [20]byte
	Name             string
	FeeBps           uint32
	DisputesResolved uint64
	BuyerWins        uint64
	SellerWins       uint64
	Active           bool
	RegisteredAt     uint64
	LastActivity     uint64
	Reputation       uint64
}

// ParticipantRole is the role record written for each participant when an
// escrow is created.
type ParticipantRole struct {
	Role     Role
	JoinedAt uint64
}

// HistoryEvent is one entry of an escrow's append-only audit trail. Hash
// chains the entry to its predecessor.
type HistoryEvent struct {
	EscrowID  uint64
	Sequence  uint64
	Action    string
	Actor     [20]byte
	Timestamp uint64
	Detail    *string
	PrevHash  [32]byte
	Hash      [32]byte
}

// Stats aggregates system-wide counters.
type Stats struct {
	TotalEscrows  uint64
	TotalVolume   *uint256.Int
	Completed     uint64
	Disputed      uint64
	Resolved      uint64
	Refunded      uint64
	ProtocolFees  *uint256.Int
	ArbiterFees   *uint256.Int
	FeeRateBps    uint32
	Paused        bool
	EmergencyMode bool
}

// Info summarises the engine's administrative configuration.
type Info struct {
	Owner         [20]byte
	FeeCollector  [20]byte
	Custody       [20]byte
	NextEscrowID  uint64
	SystemFeeBps  uint32
	Paused        bool
	EmergencyMode bool
	Initialized   bool
}

// Payout is the fee split of a funded amount.
type Payout struct {
	ProtocolFee *uint256.Int
	ArbiterFee  *uint256.Int
	Remainder   *uint256.Int
}

// Settlement is a payout whose remainder has been divided between buyer and
// seller.
type Settlement struct {
	Payout
	BuyerShare  *uint256.Int
	SellerShare *uint256.Int
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
