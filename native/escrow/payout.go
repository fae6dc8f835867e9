package escrow

import (
	"fmt"

	"github.com/holiman/uint256"
)

type payoutLeg struct {
	name   string
	to     [20]byte
	amount *uint256.Int
}

// release debits the escrow's custody ledger by its whole funded amount and
// sends each non-zero leg out of custody. The legs must add up to the funded
// amount.
func (e *Engine) release(esc *Escrow, legs []payoutLeg) error {
	total := cloneAmount(esc.FundedAmount)
	sum := new(uint256.Int)
	for _, leg := range legs {
		var overflow bool
		sum, overflow = new(uint256.Int).AddOverflow(sum, cloneAmount(leg.amount))
		if overflow {
			return fmt.Errorf("%w: payout overflow", ErrInsufficientBalance)
		}
	}
	if !sum.Eq(total) {
		return fmt.Errorf("%w: payout legs sum to %s, funded %s", ErrInsufficientBalance, sum.Dec(), total.Dec())
	}
	if err := e.escrowDebit(esc.ID, total); err != nil {
		return err
	}
	for _, leg := range legs {
		if err := e.transfer(e.custody, leg.to, leg.amount, leg.name); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) feeCollector() ([20]byte, uint32, error) {
	g, err := e.reg.getGlobals()
	if err != nil {
		return [20]byte{}, 0, err
	}
	return g.FeeCollector, e.systemFee(g), nil
}

func (e *Engine) systemFee(g *storedGlobals) uint32 {
	if !g.Initialized {
		return e.params.DefaultSystemFeeBps
	}
	return g.SystemFeeBps
}

func (e *Engine) recordFees(p Payout) error {
	return e.updateStats(func(s *storedStats) error {
		if err := addAmount(&s.ProtocolFees, p.ProtocolFee); err != nil {
			return err
		}
		return addAmount(&s.ArbiterFees, p.ArbiterFee)
	})
}

// distributePayout pays out a completed escrow: protocol fee to the fee
// collector, arbiter fee at the arbiter's registered rate, remainder to the
// seller.
func (e *Engine) distributePayout(esc *Escrow, actor [20]byte) (Payout, error) {
	collector, protocolBps, err := e.feeCollector()
	if err != nil {
		return Payout{}, err
	}
	profile, err := e.loadArbiter(esc.Arbiter)
	if err != nil {
		return Payout{}, err
	}
	esc.ArbiterFeeBps = profile.FeeBps
	payout, err := SplitPayout(esc.FundedAmount, protocolBps, esc.ArbiterFeeBps)
	if err != nil {
		return Payout{}, err
	}
	if !payout.ProtocolFee.IsZero() && collector == zeroAddress {
		return Payout{}, fmt.Errorf("%w: fee collector not configured", ErrInvalidState)
	}
	legs := []payoutLeg{
		{name: "protocol fee", to: collector, amount: payout.ProtocolFee},
		{name: "arbiter fee", to: esc.Arbiter, amount: payout.ArbiterFee},
		{name: "seller payout", to: esc.Seller, amount: payout.Remainder},
	}
	if err := e.release(esc, legs); err != nil {
		return Payout{}, err
	}
	if err := e.recordFees(payout); err != nil {
		return Payout{}, err
	}
	if _, err := e.appendHistory(esc.ID, ActionCompleted, actor, detail("seller=%s protocol=%s arbiter=%s",
		payout.Remainder.Dec(), payout.ProtocolFee.Dec(), payout.ArbiterFee.Dec())); err != nil {
		return Payout{}, err
	}
	return payout, nil
}

// distributeSettlement pays out a disputed escrow according to the arbiter's
// split of the post-fee remainder. The arbiter fee uses the settling
// profile's current rate.
func (e *Engine) distributeSettlement(esc *Escrow, profile *ArbiterProfile, buyerBps uint32) (Settlement, error) {
	collector, protocolBps, err := e.feeCollector()
	if err != nil {
		return Settlement{}, err
	}
	esc.ArbiterFeeBps = profile.FeeBps
	settlement, err := ComputeSettlement(esc.FundedAmount, protocolBps, esc.ArbiterFeeBps, buyerBps)
	if err != nil {
		return Settlement{}, err
	}
	if !settlement.ProtocolFee.IsZero() && collector == zeroAddress {
		return Settlement{}, fmt.Errorf("%w: fee collector not configured", ErrInvalidState)
	}
	legs := []payoutLeg{
		{name: "protocol fee", to: collector, amount: settlement.ProtocolFee},
		{name: "arbiter fee", to: esc.Arbiter, amount: settlement.ArbiterFee},
		{name: "buyer share", to: esc.Buyer, amount: settlement.BuyerShare},
		{name: "seller share", to: esc.Seller, amount: settlement.SellerShare},
	}
	if err := e.release(esc, legs); err != nil {
		return Settlement{}, err
	}
	if err := e.recordFees(settlement.Payout); err != nil {
		return Settlement{}, err
	}
	if _, err := e.appendHistory(esc.ID, ActionResolved, esc.Arbiter, detail("buyer=%s seller=%s buyerBps=%d protocol=%s arbiter=%s",
		settlement.BuyerShare.Dec(), settlement.SellerShare.Dec(), buyerBps,
		settlement.ProtocolFee.Dec(), settlement.ArbiterFee.Dec())); err != nil {
		return Settlement{}, err
	}
	return settlement, nil
}
