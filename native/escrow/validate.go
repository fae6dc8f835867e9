package escrow

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/holiman/uint256"
)

var zeroAddress [20]byte

// ValidateAmount requires amount to reach the configured minimum.
func (p Params) ValidateAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidParams)
	}
	if p.MinEscrowAmount != nil && amount.Lt(p.MinEscrowAmount) {
		return fmt.Errorf("%w: amount %s below minimum %s", ErrInvalidParams, amount.Dec(), p.MinEscrowAmount.Dec())
	}
	return nil
}

// ValidateDuration accepts an absent duration or one in (0, MaxDuration].
func (p Params) ValidateDuration(duration *uint64) error {
	if duration == nil {
		return nil
	}
	if *duration == 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidParams)
	}
	if *duration > p.MaxDuration {
		return fmt.Errorf("%w: duration %d exceeds maximum %d", ErrInvalidParams, *duration, p.MaxDuration)
	}
	return nil
}

// ValidateParticipants requires three distinct, non-zero identities none of
// which is the engine's custody identity.
func ValidateParticipants(buyer, seller, arbiter, custody [20]byte) error {
	for _, addr := range [][20]byte{buyer, seller, arbiter} {
		if addr == zeroAddress {
			return fmt.Errorf("%w: participant address required", ErrInvalidParams)
		}
		if addr == custody {
			return fmt.Errorf("%w: engine identity cannot participate", ErrInvalidParams)
		}
	}
	if buyer == seller || buyer == arbiter || seller == arbiter {
		return fmt.Errorf("%w: buyer, seller and arbiter must be distinct", ErrInvalidParams)
	}
	return nil
}

// ValidateReason checks the dispute reason length in characters.
func (p Params) ValidateReason(reason string) error {
	n := utf8.RuneCountInString(reason)
	if n < p.MinReasonLength || n > p.MaxReasonLength {
		return fmt.Errorf("%w: reason length %d outside [%d, %d]", ErrInvalidParams, n, p.MinReasonLength, p.MaxReasonLength)
	}
	return nil
}

// ValidateName checks an arbiter display name.
func (p Params) ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidParams)
	}
	if utf8.RuneCountInString(name) > p.MaxNameLength {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidParams, p.MaxNameLength)
	}
	return nil
}

// ValidateArbiterFee bounds an arbiter's fee rate.
func (p Params) ValidateArbiterFee(bps uint32) error {
	if bps > p.MaxFeeBps {
		return fmt.Errorf("%w: fee rate %d exceeds maximum %d", ErrInvalidParams, bps, p.MaxFeeBps)
	}
	return nil
}

// ValidateSystemFee bounds the protocol fee rate.
func (p Params) ValidateSystemFee(bps uint32) error {
	if bps > p.MaxSystemFeeBps {
		return fmt.Errorf("%w: system fee %d exceeds ceiling %d", ErrInvalidParams, bps, p.MaxSystemFeeBps)
	}
	return nil
}

// ValidateMetadata bounds the optional free-form metadata.
func (p Params) ValidateMetadata(metadata *string) error {
	if metadata == nil {
		return nil
	}
	if utf8.RuneCountInString(*metadata) > p.MaxMetadataLength {
		return fmt.Errorf("%w: metadata longer than %d characters", ErrInvalidParams, p.MaxMetadataLength)
	}
	return nil
}
