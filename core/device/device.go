// Package device defines the ports the control loop uses to talk to
// batteries, the grid meter and the EV charger.
package device

import (
	"context"
	"errors"
	"strings"

	"github.com/kilianp07/gridbalance/core/model"
)

var (
	// ErrNoReply is returned when a device did not answer in time.
	ErrNoReply = errors.New("no reply from device")
	// ErrInvalidReply is returned when a device answered with an unreadable payload.
	ErrInvalidReply = errors.New("invalid reply from device")
	// ErrMissingField is returned when a reading lacks a mandatory field.
	ErrMissingField = errors.New("missing field in reading")
)

// Sanity bound for reported power values. Anything outside is a glitch.
const maxPlausiblePower = 10000

// Status is the telemetry reported by a battery.
type Status struct {
	ID           string   `json:"id"`
	SoC          *float64 `json:"bat_soc,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	OngridPower  float64  `json:"ongrid_power"`
	OffgridPower float64  `json:"offgrid_power"`
}

// EffectivePower returns the off-grid flow when present, the on-grid flow
// otherwise. Implausible readings count as zero.
func (s Status) EffectivePower() model.Watts {
	off := plausible(s.OffgridPower)
	if off != 0 {
		return model.RoundWatts(off)
	}
	return model.RoundWatts(plausible(s.OngridPower))
}

// Battery converts the telemetry to a policy snapshot. A missing mode is
// treated as automatic, a missing SoC as empty.
func (s Status) Battery() model.Battery {
	mode := strings.ToLower(s.Mode)
	if mode == "" {
		mode = "auto"
	}
	b := model.Battery{
		ID:             s.ID,
		IsAutomatic:    mode == "auto",
		IsManual:       mode == "manual",
		EffectivePower: s.EffectivePower(),
	}
	if s.SoC != nil {
		b.Charge = *s.SoC
	}
	return b
}

func plausible(v float64) float64 {
	if v > maxPlausiblePower || v < -maxPlausiblePower {
		return 0
	}
	return v
}

// Command is the mode a battery is asked to run in.
type Command struct {
	Mode  model.Mode  `json:"mode"`
	Power model.Watts `json:"power"`
}

// CommandFor maps a decided battery to the device command. Idle batteries
// are held in manual mode at zero power.
func CommandFor(b model.Battery) Command {
	switch b.Mode() {
	case model.ModeAuto:
		return Command{Mode: model.ModeAuto}
	case model.ModeManual:
		return Command{Mode: model.ModeManual, Power: b.ManualSetPower}
	default:
		return Command{Mode: model.ModeManual}
	}
}

// BatteryClient talks to one kind of battery.
type BatteryClient interface {
	Status(ctx context.Context, id string) (Status, error)
	SetMode(ctx context.Context, id string, cmd Command) error
}

// Meter returns the signed grid power in watts, positive on import.
type Meter interface {
	GridPower(ctx context.Context) (float64, error)
}

// CarSensor reports the latest known charger state.
type CarSensor interface {
	CarState() model.CarState
}

// StaticCar is a CarSensor with a fixed connection state.
type StaticCar struct {
	Connected bool
}

// CarState implements CarSensor.
func (s StaticCar) CarState() model.CarState {
	return model.CarState{IsCarConnected: s.Connected}
}
