package model

import "math"

// Watts is a signed power value. Positive values charge a battery or consume
// from the grid, negative values discharge a battery or export to the grid.
type Watts int

// Abs returns the magnitude of w.
func (w Watts) Abs() Watts {
	if w < 0 {
		return -w
	}
	return w
}

// Clamp limits w to [-limit, limit].
func (w Watts) Clamp(limit Watts) Watts {
	if w > limit {
		return limit
	}
	if w < -limit {
		return -limit
	}
	return w
}

// RoundWatts rounds half to even, matching the rounding used by the battery
// firmware tooling the setpoints were calibrated against.
func RoundWatts(v float64) Watts {
	return Watts(math.RoundToEven(v))
}

// Battery is a snapshot of one home battery as seen by the decision policy.
type Battery struct {
	// ID is the device address. It is passed through the policy unchanged.
	ID     string  `json:"id" yaml:"id"`
	Charge float64 `json:"charge" yaml:"charge"` // state of charge in percent

	IsAutomatic    bool  `json:"isAutomatic" yaml:"isAutomatic"`
	IsManual       bool  `json:"isManual" yaml:"isManual"`
	ManualSetPower Watts `json:"manualSetPower" yaml:"manualSetPower"`
	// EffectivePower is the last measured flow. Read only for the policy.
	EffectivePower Watts `json:"effectivePower" yaml:"effectivePower"`

	// Efficiency defaults to 1 when left at zero.
	Efficiency         float64 `json:"efficiency,omitempty" yaml:"efficiency,omitempty"`
	InternalResistance float64 `json:"internalResistance,omitempty" yaml:"internalResistance,omitempty"`
}

// EffectiveEfficiency returns Efficiency with the zero value mapped to 1.
func (b Battery) EffectiveEfficiency() float64 {
	if b.Efficiency == 0 {
		return 1
	}
	return b.Efficiency
}

// SetAutomatic hands the battery over to firmware self regulation.
func (b *Battery) SetAutomatic() {
	b.IsAutomatic = true
	b.IsManual = false
	b.ManualSetPower = 0
}

// SetManual forces an explicit setpoint.
func (b *Battery) SetManual(p Watts) {
	b.IsAutomatic = false
	b.IsManual = true
	b.ManualSetPower = p
}

// SetIdle clears both modes and the setpoint.
func (b *Battery) SetIdle() {
	b.IsAutomatic = false
	b.IsManual = false
	b.ManualSetPower = 0
}

// Mode reports the operating mode derived from the flags.
func (b Battery) Mode() Mode {
	switch {
	case b.IsAutomatic:
		return ModeAuto
	case b.IsManual:
		return ModeManual
	default:
		return ModeIdle
	}
}

// Mode is the operating mode of a battery after a decision.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
	ModeIdle   Mode = "idle"
)

// CloneBatteries returns a copy of bs that can be modified freely.
func CloneBatteries(bs []Battery) []Battery {
	out := make([]Battery, len(bs))
	copy(out, bs)
	return out
}
