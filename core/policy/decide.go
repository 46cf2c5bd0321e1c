package policy

import (
	"fmt"
	"time"

	"github.com/kilianp07/gridbalance/core/model"
)

// Diagnostics explains how a decision was reached.
type Diagnostics struct {
	EffectiveImbalance float64     `json:"effectiveImbalance"`
	CarIntent          model.Watts `json:"carIntent"`
	// PreviousAutoIndex is -1 when no battery was automatic on input.
	PreviousAutoIndex int  `json:"previousAutoIndex"`
	NewAutoIndex      int  `json:"newAutoIndex"`
	LowHours          bool `json:"lowHours"`
	AutoSufficient    bool `json:"autoSufficient"`
}

// HasPreviousAuto reports whether the input carried an automatic battery.
func (d Diagnostics) HasPreviousAuto() bool { return d.PreviousAutoIndex >= 0 }

// Decision is the outcome of one control cycle.
type Decision struct {
	Batteries   []model.Battery `json:"batteries"`
	Car         model.CarState  `json:"car"`
	Diagnostics Diagnostics     `json:"diagnostics"`
}

// Policy runs the decision pipeline with a fixed set of thresholds.
type Policy struct {
	Thresholds Thresholds
}

// New returns a Policy using th with missing values defaulted.
func New(th Thresholds) Policy {
	th.SetDefaults()
	return Policy{Thresholds: th}
}

// Decide runs the pipeline with DefaultThresholds.
func Decide(batteries []model.Battery, car model.CarState, gridUsage float64, now time.Time) (Decision, error) {
	return Policy{Thresholds: DefaultThresholds()}.Decide(batteries, car, gridUsage, now)
}

// Decide computes the battery modes and the car intent for one cycle.
// The input slice is never modified.
func (p Policy) Decide(batteries []model.Battery, car model.CarState, gridUsage float64, now time.Time) (Decision, error) {
	th := p.Thresholds
	if len(batteries) == 0 {
		return Decision{}, fmt.Errorf("%w: empty battery fleet", ErrInvalidInput)
	}
	bs := model.CloneBatteries(batteries)

	low := LowHours(now, th)
	intent := CarIntent(car, gridUsage, low, bs, th)

	imbalance := gridUsage + float64(intent)
	if !th.ExcludeBatteryFlow {
		for _, b := range bs {
			imbalance += float64(b.EffectivePower)
		}
	}

	prev := PreviousAuto(bs)
	candidate := AutoCandidate(bs, imbalance, th)
	next := SelectAuto(bs, prev, candidate, imbalance, th)
	bs[next].SetAutomatic()

	sufficient := AutoSufficient(bs, prev, next, imbalance, th)
	if sufficient {
		bs = IdleOthers(bs, next)
	} else {
		bs = AllocateManual(bs, next, imbalance, th)
	}
	bs = EnforceBoundaries(bs, th)

	car.CarIntendedPowerUsage = intent
	return Decision{
		Batteries: bs,
		Car:       car,
		Diagnostics: Diagnostics{
			EffectiveImbalance: imbalance,
			CarIntent:          intent,
			PreviousAutoIndex:  prev,
			NewAutoIndex:       next,
			LowHours:           low,
			AutoSufficient:     sufficient,
		},
	}, nil
}

// Modes returns the operating mode of each battery of d.
func (d Decision) Modes() []model.Mode {
	out := make([]model.Mode, len(d.Batteries))
	for i, b := range d.Batteries {
		out[i] = b.Mode()
	}
	return out
}
