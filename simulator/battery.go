// Package simulator provides in-process fakes of the site hardware: ES
// batteries answering the UDP JSON-RPC protocol and a HomeWizard P1 meter.
package simulator

import (
	"math"
	"sync"
	"time"
)

// Battery models a home battery with charge and discharge limits.
type Battery struct {
	CapacityWh float64 // usable capacity
	SoC        float64 // state of charge in percent
	MaxPowerW  float64 // symmetric charge/discharge limit

	// Mode is "Auto" or "Manual" as reported by the firmware.
	Mode        string
	ManualPower float64
	// Flow is the power applied during the last step, positive when charging.
	Flow float64

	mu sync.Mutex
}

// NewBattery returns an automatic battery.
func NewBattery(capacityWh, soc, maxPowerW float64) *Battery {
	return &Battery{CapacityWh: capacityWh, SoC: soc, MaxPowerW: maxPowerW, Mode: "Auto"}
}

// ApplyPower updates the SoC according to the requested power and duration
// and returns the power actually applied after enforcing limits.
func (b *Battery) ApplyPower(powerW float64, dt time.Duration) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.applyLocked(powerW, dt)
}

func (b *Battery) applyLocked(powerW float64, dt time.Duration) float64 {
	hours := dt.Hours()
	if hours <= 0 || b.CapacityWh <= 0 {
		b.Flow = 0
		return 0
	}
	p := math.Max(-b.MaxPowerW, math.Min(b.MaxPowerW, powerW))
	stored := b.SoC / 100 * b.CapacityWh
	if p > 0 {
		p = math.Min(p, (b.CapacityWh-stored)/hours)
	} else {
		p = math.Max(p, -stored/hours)
	}
	stored += p * hours
	b.SoC = math.Max(0, math.Min(100, stored/b.CapacityWh*100))
	b.Flow = p
	return p
}

// Snapshot returns the fields reported over the wire.
func (b *Battery) Snapshot() (soc float64, mode string, flow float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.SoC, b.Mode, b.Flow
}

// Setpoint returns the commanded mode and manual power.
func (b *Battery) Setpoint() (mode string, powerW float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Mode, b.ManualPower
}

// SetAuto switches the battery to self regulation.
func (b *Battery) SetAuto() {
	b.mu.Lock()
	b.Mode = "Auto"
	b.ManualPower = 0
	b.mu.Unlock()
}

// SetManual fixes the setpoint.
func (b *Battery) SetManual(powerW float64) {
	b.mu.Lock()
	b.Mode = "Manual"
	b.ManualPower = powerW
	b.mu.Unlock()
}
