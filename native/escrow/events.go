package escrow

import (
	"encoding/hex"
	"strconv"

	"github.com/holiman/uint256"

	"escrowledger/core/types"
)

const (
	EventTypeEscrowCreated   = "escrow.created"
	EventTypeEscrowFunded    = "escrow.funded"
	EventTypeEscrowConfirmed = "escrow.confirmed"
	EventTypeEscrowCompleted = "escrow.completed"
	EventTypeEscrowDisputed  = "escrow.disputed"
	EventTypeEscrowResolved  = "escrow.resolved"
	EventTypeEscrowRefunded  = "escrow.refunded"
	EventTypeArbiterJoined   = "escrow.arbiter.joined"
	EventTypeArbiterUpdated  = "escrow.arbiter.updated"
	EventTypeArbiterToggled  = "escrow.arbiter.toggled"
	EventTypeAdminChanged    = "escrow.admin.changed"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// NewEscrowEvent returns the canonical event payload for an escrow transition.
func NewEscrowEvent(eventType string, e *Escrow) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(e.ID, 10)
	attrs["buyer"] = hex.EncodeToString(e.Buyer[:])
	attrs["seller"] = hex.EncodeToString(e.Seller[:])
	attrs["arbiter"] = hex.EncodeToString(e.Arbiter[:])
	attrs["amount"] = cloneAmount(e.Amount).Dec()
	attrs["status"] = e.Status.String()
	attrs["createdAt"] = strconv.FormatUint(e.CreatedAt, 10)
	if e.ExpiresAt != nil {
		attrs["expiresAt"] = strconv.FormatUint(*e.ExpiresAt, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newPayoutEvent(eventType string, e *Escrow, p Payout) *types.Event {
	evt := NewEscrowEvent(eventType, e)
	evt.Attributes["protocolFee"] = cloneAmount(p.ProtocolFee).Dec()
	evt.Attributes["arbiterFee"] = cloneAmount(p.ArbiterFee).Dec()
	evt.Attributes["remainder"] = cloneAmount(p.Remainder).Dec()
	return evt
}

func newSettlementEvent(e *Escrow, s Settlement, buyerBps uint32) *types.Event {
	evt := newPayoutEvent(EventTypeEscrowResolved, e, s.Payout)
	evt.Attributes["buyerShare"] = cloneAmount(s.BuyerShare).Dec()
	evt.Attributes["sellerShare"] = cloneAmount(s.SellerShare).Dec()
	evt.Attributes["buyerBps"] = strconv.FormatUint(uint64(buyerBps), 10)
	return evt
}

func newRefundEvent(e *Escrow, recipient [20]byte, amount *uint256.Int) *types.Event {
	evt := NewEscrowEvent(EventTypeEscrowRefunded, e)
	evt.Attributes["amount"] = cloneAmount(amount).Dec()
	if !amount.IsZero() {
		evt.Attributes["recipient"] = hex.EncodeToString(recipient[:])
	}
	return evt
}

// NewArbiterEvent returns the canonical payload for an arbiter directory change.
func NewArbiterEvent(eventType string, p *ArbiterProfile) *types.Event {
	attrs := make(map[string]string)
	if p == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["arbiter"] = hex.EncodeToString(p.Address[:])
	attrs["name"] = p.Name
	attrs["feeBps"] = strconv.FormatUint(uint64(p.FeeBps), 10)
	attrs["active"] = strconv.FormatBool(p.Active)
	attrs["reputation"] = strconv.FormatUint(p.Reputation, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newAdminEvent(action string, caller [20]byte, value string) *types.Event {
	attrs := map[string]string{
		"action": action,
		"caller": hex.EncodeToString(caller[:]),
	}
	if value != "" {
		attrs["value"] = value
	}
	return &types.Event{Type: EventTypeAdminChanged, Attributes: attrs}
}
