package escrow

import (
	"fmt"

	"github.com/holiman/uint256"
)

// FetchEscrow returns a copy of the escrow record.
func (e *Engine) FetchEscrow(id uint64) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadEscrow(id)
}

// FetchArbiter returns the arbiter's profile, if registered.
func (e *Engine) FetchArbiter(addr [20]byte) (*ArbiterProfile, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	return e.reg.getArbiter(addr)
}

// FetchDeposit returns the deposit made into the escrow, if any.
func (e *Engine) FetchDeposit(id uint64) (*Deposit, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	return e.reg.getDeposit(id)
}

// FetchRole returns the role addr was recorded with when the escrow was
// created.
func (e *Engine) FetchRole(id uint64, addr [20]byte) (*ParticipantRole, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	return e.reg.getRole(id, addr)
}

// FetchHistory returns the audit event at seq.
func (e *Engine) FetchHistory(id, seq uint64) (*HistoryEvent, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	return e.reg.getHistory(id, seq)
}

// FetchHistoryRange returns the whole audit trail in sequence order.
func (e *Engine) FetchHistoryRange(id uint64) ([]*HistoryEvent, error) {
	count, err := e.FetchCounter(id)
	if err != nil {
		return nil, err
	}
	out := make([]*HistoryEvent, 0, count)
	for seq := uint64(1); seq <= count; seq++ {
		evt, ok, err := e.reg.getHistory(id, seq)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("escrow: history %d/%d missing", id, seq)
		}
		out = append(out, evt)
	}
	return out, nil
}

// FetchCounter returns the number of audit events recorded for the escrow.
func (e *Engine) FetchCounter(id uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.reg.getSequence(id)
}

// FetchSystemFee returns the protocol fee rate applied at payout.
func (e *Engine) FetchSystemFee() (uint32, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	g, err := e.reg.getGlobals()
	if err != nil {
		return 0, err
	}
	return e.systemFee(g), nil
}

// FetchInfo returns the administrative configuration.
func (e *Engine) FetchInfo() (*Info, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	g, err := e.reg.getGlobals()
	if err != nil {
		return nil, err
	}
	next := g.NextID
	if next == 0 {
		next = 1
	}
	return &Info{
		Owner:         g.Owner,
		FeeCollector:  g.FeeCollector,
		Custody:       e.custody,
		NextEscrowID:  next,
		SystemFeeBps:  e.systemFee(g),
		Paused:        g.Paused || g.Emergency,
		EmergencyMode: g.Emergency,
		Initialized:   g.Initialized,
	}, nil
}

// FetchStats returns the system-wide counters.
func (e *Engine) FetchStats() (*Stats, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	s, err := e.reg.getStats()
	if err != nil {
		return nil, err
	}
	g, err := e.reg.getGlobals()
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalEscrows:  s.TotalEscrows,
		TotalVolume:   s.TotalVolume,
		Completed:     s.Completed,
		Disputed:      s.Disputed,
		Resolved:      s.Resolved,
		Refunded:      s.Refunded,
		ProtocolFees:  s.ProtocolFees,
		ArbiterFees:   s.ArbiterFees,
		FeeRateBps:    e.systemFee(g),
		Paused:        g.Paused || g.Emergency,
		EmergencyMode: g.Emergency,
	}, nil
}

// FetchCustody returns the amount currently held in custody for the escrow.
func (e *Engine) FetchCustody(id uint64) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.reg.getCustody(id)
}
