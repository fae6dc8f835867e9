package escrow

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestPayoutConservesValue verifies fees plus remainder always equal the
// escrowed amount. Property: protocol + arbiter + remainder == amount
func TestPayoutConservesValue(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("payout legs sum to amount", prop.ForAll(
		func(amount uint64, protocolBps, arbiterBps uint32) bool {
			total := uint256.NewInt(amount)
			p, err := SplitPayout(total, protocolBps, arbiterBps)
			if err != nil {
				return false
			}
			sum := new(uint256.Int).Add(p.ProtocolFee, p.ArbiterFee)
			sum.Add(sum, p.Remainder)
			return sum.Eq(total)
		},
		gen.UInt64(),
		gen.UInt32Range(0, 500),
		gen.UInt32Range(0, 1_000),
	))

	properties.TestingRun(t)
}

// TestFeeIsFloorOfRate verifies fees never exceed the exact rational fee.
// Property: fee * 10000 <= amount * bps < (fee + 1) * 10000
func TestFeeIsFloorOfRate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("fee is floor(amount*bps/10000)", prop.ForAll(
		func(amount uint64, bps uint32) bool {
			fee, err := ComputeFee(uint256.NewInt(amount), bps)
			if err != nil {
				return false
			}
			exact := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(uint64(bps)))
			lower := new(uint256.Int).Mul(fee, precision)
			upper := new(uint256.Int).Add(lower, precision)
			return !lower.Gt(exact) && exact.Lt(upper)
		},
		gen.UInt64(),
		gen.UInt32Range(0, PrecisionScale),
	))

	properties.TestingRun(t)
}

// TestSettlementConservesValue verifies the buyer and seller shares plus fees
// equal the escrowed amount for every percentage.
func TestSettlementConservesValue(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("settlement legs sum to amount", prop.ForAll(
		func(amount uint64, protocolBps, arbiterBps, buyerBps uint32) bool {
			total := uint256.NewInt(amount)
			s, err := ComputeSettlement(total, protocolBps, arbiterBps, buyerBps)
			if err != nil {
				return false
			}
			shares := new(uint256.Int).Add(s.BuyerShare, s.SellerShare)
			if !shares.Eq(s.Remainder) {
				return false
			}
			sum := new(uint256.Int).Add(shares, s.ProtocolFee)
			sum.Add(sum, s.ArbiterFee)
			return sum.Eq(total)
		},
		gen.UInt64(),
		gen.UInt32Range(0, 500),
		gen.UInt32Range(0, 1_000),
		gen.UInt32Range(0, PrecisionScale),
	))

	properties.Property("buyer share grows with percentage", prop.ForAll(
		func(amount uint64, low, high uint32) bool {
			if low > high {
				low, high = high, low
			}
			a, _, err := SplitSettlement(uint256.NewInt(amount), low)
			if err != nil {
				return false
			}
			b, _, err := SplitSettlement(uint256.NewInt(amount), high)
			if err != nil {
				return false
			}
			return !a.Gt(b)
		},
		gen.UInt64(),
		gen.UInt32Range(0, PrecisionScale),
		gen.UInt32Range(0, PrecisionScale),
	))

	properties.TestingRun(t)
}

func TestMathRejectsOutOfRangeRates(t *testing.T) {
	amount := uint256.NewInt(10_000)
	if _, err := ComputeFee(amount, PrecisionScale+1); KindOf(err) != KindInvalidParams {
		t.Fatalf("expected invalid params, got %v", err)
	}
	if _, _, err := SplitSettlement(amount, PrecisionScale+1); KindOf(err) != KindInvalidPercentage {
		t.Fatalf("expected invalid percentage, got %v", err)
	}
	if _, err := ComputeSettlement(amount, 0, 0, PrecisionScale+1); KindOf(err) != KindInvalidPercentage {
		t.Fatalf("expected invalid percentage, got %v", err)
	}
	if _, err := SplitPayout(amount, 6_000, 5_000); KindOf(err) != KindInsufficientBalance {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestExpiry(t *testing.T) {
	if IsExpired(nil, ^uint64(0)) {
		t.Fatalf("escrow without expiry must never expire")
	}
	expiry, err := ExpiryFor(100, u64(10))
	if err != nil || *expiry != 110 {
		t.Fatalf("unexpected expiry %v %v", expiry, err)
	}
	if IsExpired(expiry, 109) || !IsExpired(expiry, 110) {
		t.Fatalf("expiry boundary is inclusive")
	}
	if _, err := ExpiryFor(^uint64(0), u64(1)); KindOf(err) != KindInvalidParams {
		t.Fatalf("expected overflow error, got %v", err)
	}
	if none, err := ExpiryFor(100, nil); err != nil || none != nil {
		t.Fatalf("nil duration should yield nil expiry")
	}
}
