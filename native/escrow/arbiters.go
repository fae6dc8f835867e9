package escrow

import "fmt"

// JoinArbiters registers the caller as an arbiter with a display name and a
// fee rate in basis points of the escrow amount.
func (e *Engine) JoinArbiters(caller [20]byte, name string, feeBps uint32) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guardRunning(); err != nil {
		return err
	}
	if err := e.params.ValidateArbiterFee(feeBps); err != nil {
		return err
	}
	if err := e.params.ValidateName(name); err != nil {
		return err
	}
	if caller == e.custody || caller == zeroAddress {
		return fmt.Errorf("%w: identity cannot act as arbiter", ErrInvalidParams)
	}
	if _, exists, err := e.reg.getArbiter(caller); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: arbiter %x already registered", ErrAlreadyExists, caller)
	}
	now := e.now()
	profile := &ArbiterProfile{
		Address:      caller,
		Name:         name,
		FeeBps:       feeBps,
		Active:       true,
		RegisteredAt: now,
		LastActivity: now,
		Reputation:   e.params.initialReputation(),
	}
	if err := e.reg.putArbiter(profile); err != nil {
		return err
	}
	e.emit(NewArbiterEvent(EventTypeArbiterJoined, profile))
	return nil
}

// UpdateProfile applies the supplied fields to the caller's profile; nil
// fields are left unchanged.
func (e *Engine) UpdateProfile(caller [20]byte, name *string, feeBps *uint32) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guardRunning(); err != nil {
		return err
	}
	profile, err := e.loadArbiter(caller)
	if err != nil {
		return err
	}
	if name != nil {
		if err := e.params.ValidateName(*name); err != nil {
			return err
		}
	}
	if feeBps != nil {
		if err := e.params.ValidateArbiterFee(*feeBps); err != nil {
			return err
		}
	}
	if name != nil {
		profile.Name = *name
	}
	if feeBps != nil {
		profile.FeeBps = *feeBps
	}
	profile.LastActivity = e.now()
	if err := e.reg.putArbiter(profile); err != nil {
		return err
	}
	e.emit(NewArbiterEvent(EventTypeArbiterUpdated, profile))
	return nil
}

// ToggleStatus flips whether the caller can be named on new escrows and
// returns the new value. Escrows already naming the arbiter are unaffected.
func (e *Engine) ToggleStatus(caller [20]byte) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if err := e.guardRunning(); err != nil {
		return false, err
	}
	profile, err := e.loadArbiter(caller)
	if err != nil {
		return false, err
	}
	profile.Active = !profile.Active
	profile.LastActivity = e.now()
	if err := e.reg.putArbiter(profile); err != nil {
		return false, err
	}
	e.emit(NewArbiterEvent(EventTypeArbiterToggled, profile))
	return profile.Active, nil
}

func (e *Engine) loadArbiter(addr [20]byte) (*ArbiterProfile, error) {
	profile, ok, err := e.reg.getArbiter(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: arbiter %x", ErrNotFound, addr)
	}
	return profile, nil
}
