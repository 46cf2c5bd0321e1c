package policy

import (
	"math"

	"github.com/kilianp07/gridbalance/core/model"
)

// CarIntent returns the power the EV charger should draw. A grid export is
// forwarded to the car, fully when the batteries are almost full. While
// importing the car only charges during off-peak hours and only when the
// fleet is not depleted.
func CarIntent(car model.CarState, gridUsage float64, lowHours bool, bs []model.Battery, th Thresholds) model.Watts {
	if !car.IsCarConnected {
		return 0
	}
	if gridUsage < 0 {
		if allAtLeast(bs, th.CarFullSoC) {
			return model.RoundWatts(math.Abs(gridUsage))
		}
		return model.RoundWatts(math.Abs(gridUsage) * th.SolarRatio)
	}
	switch {
	case lowHours && allAtLeast(bs, th.CarFullSoC):
		return th.OffPeakCarPower
	case lowHours && !allAtMost(bs, th.MinSoC):
		return th.OffPeakCarPower
	default:
		return 0
	}
}

func allAtLeast(bs []model.Battery, level float64) bool {
	for _, b := range bs {
		if b.Charge < level {
			return false
		}
	}
	return true
}

func allAtMost(bs []model.Battery, level float64) bool {
	for _, b := range bs {
		if b.Charge > level {
			return false
		}
	}
	return true
}
