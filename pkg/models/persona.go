package models

// PersonaType identifies the template tier a generated record targets.
// The ordering matters: fallback escalation walks from richer to simpler
// tiers and stops at the simplest.
type PersonaType string

const (
	// PersonaB2B is the richest persona shape, used for business records.
	PersonaB2B PersonaType = "b2b"
	// PersonaStandard is the default consumer persona shape.
	PersonaStandard PersonaType = "standard"
	// PersonaSimple is the minimal shape used as the last template tier.
	PersonaSimple PersonaType = "simple"
)

// Valid returns true if the persona type is a known value.
func (p PersonaType) Valid() bool {
	switch p {
	case PersonaB2B, PersonaStandard, PersonaSimple:
		return true
	default:
		return false
	}
}

// NextSimpler returns the persona type one tier down the escalation chain,
// or empty string when already at the simplest tier.
func (p PersonaType) NextSimpler() PersonaType {
	switch p {
	case PersonaB2B:
		return PersonaStandard
	case PersonaStandard:
		return PersonaSimple
	default:
		return ""
	}
}

// Simplest returns true if no simpler tier exists below this one.
func (p PersonaType) Simplest() bool {
	return p.NextSimpler() == ""
}
