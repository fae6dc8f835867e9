package escrow

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

const (
	adminActionInitialize        = "initialize"
	adminActionPause             = "pause"
	adminActionUnpause           = "unpause"
	adminActionEmergency         = "emergency"
	adminActionClearEmergency    = "clear-emergency"
	adminActionSystemFee         = "system-fee"
	adminActionFeeCollector      = "fee-collector"
	adminActionOwnershipTransfer = "ownership-transfer"
)

// Initialize bootstraps the administrative globals. It may run only once.
func (e *Engine) Initialize(owner, feeCollector [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	g, err := e.reg.getGlobals()
	if err != nil {
		return err
	}
	if g.Initialized {
		return fmt.Errorf("%w: engine already initialised", ErrAlreadyExists)
	}
	if owner == zeroAddress || owner == e.custody {
		return fmt.Errorf("%w: invalid owner", ErrInvalidParams)
	}
	if feeCollector == zeroAddress || feeCollector == e.custody {
		return fmt.Errorf("%w: invalid fee collector", ErrInvalidParams)
	}
	g.Initialized = true
	g.Owner = owner
	g.FeeCollector = feeCollector
	g.SystemFeeBps = e.params.DefaultSystemFeeBps
	if g.NextID == 0 {
		g.NextID = 1
	}
	if err := e.reg.putGlobals(g); err != nil {
		return err
	}
	e.emit(newAdminEvent(adminActionInitialize, owner, hex.EncodeToString(feeCollector[:])))
	return nil
}

// loadOwned returns the globals after checking the caller is the owner.
func (e *Engine) loadOwned(caller [20]byte) (*storedGlobals, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	g, err := e.reg.getGlobals()
	if err != nil {
		return nil, err
	}
	if !g.Initialized || caller != g.Owner {
		return nil, fmt.Errorf("%w: owner only", ErrAccessDenied)
	}
	return g, nil
}

func (e *Engine) storeAdmin(g *storedGlobals, action string, caller [20]byte, value string) error {
	if err := e.reg.putGlobals(g); err != nil {
		return err
	}
	e.emit(newAdminEvent(action, caller, value))
	return nil
}

// SetPaused halts every mutating operation except the pause and emergency
// controls.
func (e *Engine) SetPaused(caller [20]byte) error {
	g, err := e.loadOwned(caller)
	if err != nil {
		return err
	}
	g.Paused = true
	return e.storeAdmin(g, adminActionPause, caller, "")
}

// ClearPaused resumes operations. It refuses while emergency mode is active.
func (e *Engine) ClearPaused(caller [20]byte) error {
	g, err := e.loadOwned(caller)
	if err != nil {
		return err
	}
	if g.Emergency {
		return fmt.Errorf("%w: clear emergency mode first", ErrContractPaused)
	}
	g.Paused = false
	return e.storeAdmin(g, adminActionUnpause, caller, "")
}

// TriggerEmergency sets both the emergency and paused flags.
func (e *Engine) TriggerEmergency(caller [20]byte) error {
	g, err := e.loadOwned(caller)
	if err != nil {
		return err
	}
	g.Emergency = true
	g.Paused = true
	return e.storeAdmin(g, adminActionEmergency, caller, "")
}

// ClearEmergency clears both the emergency and paused flags.
func (e *Engine) ClearEmergency(caller [20]byte) error {
	g, err := e.loadOwned(caller)
	if err != nil {
		return err
	}
	g.Emergency = false
	g.Paused = false
	return e.storeAdmin(g, adminActionClearEmergency, caller, "")
}

// SetSystemFee changes the protocol fee rate, bounded by MaxSystemFeeBps.
func (e *Engine) SetSystemFee(caller [20]byte, feeBps uint32) error {
	g, err := e.loadOwned(caller)
	if err != nil {
		return err
	}
	if err := e.guardPaused(); err != nil {
		return err
	}
	if err := e.params.ValidateSystemFee(feeBps); err != nil {
		return err
	}
	g.SystemFeeBps = feeBps
	return e.storeAdmin(g, adminActionSystemFee, caller, strconv.FormatUint(uint64(feeBps), 10))
}

// SetFeeCollector changes the identity receiving protocol fees.
func (e *Engine) SetFeeCollector(caller, collector [20]byte) error {
	g, err := e.loadOwned(caller)
	if err != nil {
		return err
	}
	if err := e.guardPaused(); err != nil {
		return err
	}
	if collector == e.custody || collector == zeroAddress {
		return fmt.Errorf("%w: invalid fee collector", ErrInvalidParams)
	}
	g.FeeCollector = collector
	return e.storeAdmin(g, adminActionFeeCollector, caller, hex.EncodeToString(collector[:]))
}

// TransferOwnership hands the administrative controls to newOwner.
func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
	g, err := e.loadOwned(caller)
	if err != nil {
		return err
	}
	if err := e.guardPaused(); err != nil {
		return err
	}
	if newOwner == e.custody || newOwner == zeroAddress {
		return fmt.Errorf("%w: invalid owner", ErrInvalidParams)
	}
	g.Owner = newOwner
	return e.storeAdmin(g, adminActionOwnershipTransfer, caller, hex.EncodeToString(newOwner[:]))
}
