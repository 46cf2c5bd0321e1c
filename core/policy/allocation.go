package policy

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/gridbalance/core/model"
)

// AllocateManual spreads the residual imbalance over the non automatic
// batteries and returns the updated copy. The setpoint opposes the imbalance:
// a grid import makes the helpers discharge, an export makes them charge.
func AllocateManual(bs []model.Battery, auto int, imbalance float64, th Thresholds) []model.Battery {
	out := model.CloneBatteries(bs)
	if len(out) == 0 {
		return out
	}
	mag := math.Abs(imbalance)
	direction := 1.0
	if imbalance > 0 {
		direction = -1
	}
	need := math.Min(float64(th.MaxPower), mag) * direction
	scale := math.Max(0, math.Min(1, (mag-float64(th.OverloadBand))/float64(th.RampWidth)))

	charges := make([]float64, len(out))
	for i, b := range out {
		charges[i] = b.Charge
	}
	spread := floats.Max(charges) - floats.Min(charges)
	avg := stat.Mean(charges, nil)

	for _, i := range byCharge(out, direction < 0) {
		if i == auto {
			continue
		}
		b := &out[i]
		if (direction < 0 && b.Charge <= th.MinSoC) || (direction > 0 && b.Charge >= th.FullSoC) {
			b.SetIdle()
			continue
		}
		var p model.Watts
		if spread > th.SpreadSoC {
			bias := math.Abs(b.Charge-avg) / math.Max(1, spread)
			p = model.RoundWatts(need * (0.5 + 0.5*bias) * scale)
		} else {
			p = model.RoundWatts(need * scale)
		}
		b.SetManual(p.Clamp(th.MaxPower))
	}
	return applyCutoff(out, th)
}

func applyCutoff(bs []model.Battery, th Thresholds) []model.Battery {
	for i := range bs {
		if bs[i].IsManual && bs[i].ManualSetPower.Abs() < th.ManualCutoff {
			bs[i].IsManual = false
			bs[i].ManualSetPower = 0
		}
	}
	return bs
}

// EnforceBoundaries cancels setpoints that would charge a full battery or
// discharge a depleted one.
func EnforceBoundaries(bs []model.Battery, th Thresholds) []model.Battery {
	out := model.CloneBatteries(bs)
	for i := range out {
		b := &out[i]
		if b.Charge >= th.FullSoC && b.ManualSetPower > 0 {
			b.ManualSetPower = 0
			b.IsManual = false
		}
		if b.Charge <= th.MinSoC && b.ManualSetPower < 0 {
			b.ManualSetPower = 0
			b.IsManual = false
		}
	}
	return out
}
