package common

import (
	"errors"
	"fmt"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module is halted. Implementations backed by
// state return the read error instead of guessing.
type PauseView interface {
	IsPaused(module string) (bool, error)
}

// Guard fails with ErrModulePaused when p reports module as paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	paused, err := p.IsPaused(module)
	if err != nil {
		return fmt.Errorf("pause view: %w", err)
	}
	if paused {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a fixed set of paused modules, typically loaded from
// configuration at startup.
type StaticPauses map[string]bool

// IsPaused implements PauseView.
func (s StaticPauses) IsPaused(module string) (bool, error) {
	return s[module], nil
}
