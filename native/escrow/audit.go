package escrow

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// History action tags.
const (
	ActionCreated   = "created"
	ActionFunded    = "funded"
	ActionConfirmed = "confirmed"
	ActionCompleted = "completed"
	ActionDisputed  = "disputed"
	ActionResolved  = "resolved"
	ActionRefunded  = "refunded"
)

type historyDigest struct {
	EscrowID  uint64
	Sequence  uint64
	Action    string
	Actor     [20]byte
	Timestamp uint64
	HasDetail bool
	Detail    string
	PrevHash  [32]byte
}

func hashHistory(evt *storedHistoryEvent) ([32]byte, error) {
	encoded, err := rlp.EncodeToBytes(&historyDigest{
		EscrowID:  evt.EscrowID,
		Sequence:  evt.Sequence,
		Action:    evt.Action,
		Actor:     evt.Actor,
		Timestamp: evt.Timestamp,
		HasDetail: evt.HasDetail,
		Detail:    evt.Detail,
		PrevHash:  evt.PrevHash,
	})
	if err != nil {
		return [32]byte{}, err
	}
	return ethcrypto.Keccak256Hash(encoded), nil
}

// appendHistory records the next event of an escrow's trail. The first event
// has sequence 1 and every append advances the counter by exactly one.
func (e *Engine) appendHistory(id uint64, action string, actor [20]byte, detail *string) (*HistoryEvent, error) {
	seq, err := e.reg.getSequence(id)
	if err != nil {
		return nil, err
	}
	next := seq + 1
	if next == 0 {
		return nil, fmt.Errorf("escrow: history sequence overflow")
	}
	evt := &storedHistoryEvent{
		EscrowID:  id,
		Sequence:  next,
		Action:    action,
		Actor:     actor,
		Timestamp: e.now(),
	}
	if detail != nil {
		evt.HasDetail = true
		evt.Detail = *detail
	}
	if seq > 0 {
		prev, ok, err := e.reg.getHistory(id, seq)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("escrow: history %d/%d missing", id, seq)
		}
		evt.PrevHash = prev.Hash
	}
	evt.Hash, err = hashHistory(evt)
	if err != nil {
		return nil, err
	}
	if err := e.reg.putHistory(evt); err != nil {
		return nil, err
	}
	if err := e.reg.putSequence(id, next); err != nil {
		return nil, err
	}
	return evt.event(), nil
}

// HistoryReport is the outcome of re-verifying an escrow's audit trail.
type HistoryReport struct {
	EscrowID uint64
	Length   uint64
	Intact   bool
	// BrokenAt is the first sequence whose stored hash or link does not
	// match, zero when the trail is intact.
	BrokenAt uint64
}

// VerifyHistory recomputes the hash chain of an escrow's trail.
func (e *Engine) VerifyHistory(id uint64) (*HistoryReport, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	length, err := e.reg.getSequence(id)
	if err != nil {
		return nil, err
	}
	report := &HistoryReport{EscrowID: id, Length: length, Intact: true}
	var prev [32]byte
	for seq := uint64(1); seq <= length; seq++ {
		var stored storedHistoryEvent
		ok, err := e.reg.store.KVGet(historyKey(id, seq), &stored)
		if err != nil {
			return nil, err
		}
		if !ok || stored.Sequence != seq || stored.PrevHash != prev {
			report.Intact = false
			report.BrokenAt = seq
			return report, nil
		}
		digest, err := hashHistory(&stored)
		if err != nil {
			return nil, err
		}
		if digest != stored.Hash {
			report.Intact = false
			report.BrokenAt = seq
			return report, nil
		}
		prev = stored.Hash
	}
	return report, nil
}
