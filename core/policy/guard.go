package policy

import (
	"math"

	"github.com/kilianp07/gridbalance/core/model"
)

// RemainingCapacity is the headroom left on b given its measured flow.
func RemainingCapacity(b model.Battery, th Thresholds) model.Watts {
	rem := th.MaxPower - b.EffectivePower.Abs()
	if rem < 0 {
		return 0
	}
	return rem
}

// AutoSufficient reports whether the automatic battery can absorb the
// imbalance alone. The larger headroom of the previous and the new automatic
// battery counts. prev is -1 when there was no previous automatic battery.
func AutoSufficient(bs []model.Battery, prev, next int, imbalance float64, th Thresholds) bool {
	maxCap := RemainingCapacity(bs[next], th)
	if prev >= 0 {
		if c := RemainingCapacity(bs[prev], th); c > maxCap {
			maxCap = c
		}
	}
	return math.Abs(imbalance) <= float64(th.OverloadBand)+float64(maxCap)/2
}

// IdleOthers returns a copy of bs where every battery except auto is idle.
func IdleOthers(bs []model.Battery, auto int) []model.Battery {
	out := model.CloneBatteries(bs)
	for i := range out {
		if i != auto {
			out[i].SetIdle()
		}
	}
	return out
}
