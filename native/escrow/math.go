package escrow

import (
	"fmt"

	"github.com/holiman/uint256"
)

var precision = uint256.NewInt(PrecisionScale)

// ComputeFee returns floor(amount * bps / PrecisionScale).
func ComputeFee(amount *uint256.Int, bps uint32) (*uint256.Int, error) {
	if bps > PrecisionScale {
		return nil, fmt.Errorf("%w: fee rate %d exceeds %d", ErrInvalidParams, bps, PrecisionScale)
	}
	if amount == nil || amount.IsZero() || bps == 0 {
		return new(uint256.Int), nil
	}
	fee, overflow := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(uint64(bps)), precision)
	if overflow {
		return nil, fmt.Errorf("%w: fee overflow", ErrInvalidParams)
	}
	return fee, nil
}

// SplitPayout divides amount into the protocol fee, the arbiter fee and the
// remainder. It fails with ErrInsufficientBalance when the fees would exceed
// amount.
func SplitPayout(amount *uint256.Int, protocolBps, arbiterBps uint32) (Payout, error) {
	total := cloneAmount(amount)
	protocolFee, err := ComputeFee(total, protocolBps)
	if err != nil {
		return Payout{}, err
	}
	arbiterFee, err := ComputeFee(total, arbiterBps)
	if err != nil {
		return Payout{}, err
	}
	fees, overflow := new(uint256.Int).AddOverflow(protocolFee, arbiterFee)
	if overflow || fees.Gt(total) {
		return Payout{}, fmt.Errorf("%w: fees %s exceed amount %s", ErrInsufficientBalance, fees.Dec(), total.Dec())
	}
	return Payout{
		ProtocolFee: protocolFee,
		ArbiterFee:  arbiterFee,
		Remainder:   new(uint256.Int).Sub(total, fees),
	}, nil
}

// SplitSettlement divides remaining between buyer and seller. The buyer share
// is floor(remaining * buyerBps / PrecisionScale) and the seller receives the
// rest, so nothing is lost to rounding.
func SplitSettlement(remaining *uint256.Int, buyerBps uint32) (buyer, seller *uint256.Int, err error) {
	if buyerBps > PrecisionScale {
		return nil, nil, fmt.Errorf("%w: buyer share %d exceeds %d", ErrInvalidPercentage, buyerBps, PrecisionScale)
	}
	total := cloneAmount(remaining)
	buyer, err = ComputeFee(total, buyerBps)
	if err != nil {
		return nil, nil, err
	}
	return buyer, new(uint256.Int).Sub(total, buyer), nil
}

// ComputeSettlement applies the fee split and then the buyer/seller split.
func ComputeSettlement(amount *uint256.Int, protocolBps, arbiterBps, buyerBps uint32) (Settlement, error) {
	if buyerBps > PrecisionScale {
		return Settlement{}, fmt.Errorf("%w: buyer share %d exceeds %d", ErrInvalidPercentage, buyerBps, PrecisionScale)
	}
	payout, err := SplitPayout(amount, protocolBps, arbiterBps)
	if err != nil {
		return Settlement{}, err
	}
	buyer, seller, err := SplitSettlement(payout.Remainder, buyerBps)
	if err != nil {
		return Settlement{}, err
	}
	return Settlement{Payout: payout, BuyerShare: buyer, SellerShare: seller}, nil
}

// IsExpired reports whether an escrow with the given optional expiry has
// passed its deadline at now. Escrows without an expiry never expire.
func IsExpired(expiresAt *uint64, now uint64) bool {
	return expiresAt != nil && now >= *expiresAt
}

// ExpiryFor returns now + duration, or nil when no duration is supplied.
func ExpiryFor(now uint64, duration *uint64) (*uint64, error) {
	if duration == nil {
		return nil, nil
	}
	expiry := now + *duration
	if expiry < now {
		return nil, fmt.Errorf("%w: duration overflows clock", ErrInvalidParams)
	}
	return &expiry, nil
}
