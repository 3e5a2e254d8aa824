package types

import (
	"encoding/json"
	"fmt"
)

// Phase is the forward-only lifecycle stage of a token record.
type Phase uint8

const (
	PhasePendingGeneration Phase = iota
	PhaseTrading
	PhaseFairLaunch
	PhaseOpen
)

var phaseNames = [...]string{
	PhasePendingGeneration: "pending_generation",
	PhaseTrading:           "trading",
	PhaseFairLaunch:        "fair_launch",
	PhaseOpen:              "open",
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return int(p) < len(phaseNames)
}

// String returns the snake_case phase name.
func (p Phase) String() string {
	if !p.Valid() {
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
	return phaseNames[p]
}

// CanAdvanceTo reports whether next is the immediate successor of p.
// Phases never regress and never skip a stage.
func (p Phase) CanAdvanceTo(next Phase) bool {
	return next.Valid() && next == p+1
}

// Tradable reports whether buys and sells are accepted in this phase.
func (p Phase) Tradable() bool {
	return p == PhaseTrading || p == PhaseFairLaunch || p == PhaseOpen
}

// MarshalJSON encodes the phase by name.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a phase name.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePhase(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePhase converts a phase name back to a Phase.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}
