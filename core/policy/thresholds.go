package policy

import (
	"fmt"

	"github.com/kilianp07/gridbalance/core/model"
)

// Thresholds groups every tunable constant of the decision policy.
// Zero fields are replaced by DefaultThresholds values in SetDefaults.
type Thresholds struct {
	// Peak window on weekdays, local hour in [PeakStartHour, PeakEndHour).
	PeakStartHour int `json:"peak_start_hour"`
	PeakEndHour   int `json:"peak_end_hour"`

	// SoC breakpoints in percent.
	MinSoC        float64 `json:"min_soc"`        // never discharge at or below
	FullSoC       float64 `json:"full_soc"`       // never charge at or above
	CarFullSoC    float64 `json:"car_full_soc"`   // fleet considered full for car charging
	ChargeCeiling float64 `json:"charge_ceiling"` // auto candidates for charging stay below
	HysteresisSoC float64 `json:"hysteresis_soc"`
	SpreadSoC     float64 `json:"spread_soc"`

	NeutralBand  model.Watts `json:"neutral_band"`
	OverloadBand model.Watts `json:"overload_band"` // what the automatic battery absorbs alone
	RampWidth    model.Watts `json:"ramp_width"`
	ManualCutoff model.Watts `json:"manual_cutoff"`
	MaxPower     model.Watts `json:"max_power"`

	SolarRatio      float64     `json:"solar_ratio"`
	OffPeakCarPower model.Watts `json:"off_peak_car_power"`

	// ExcludeBatteryFlow drops the measured battery flows from the imbalance.
	ExcludeBatteryFlow bool `json:"exclude_battery_flow"`
}

// DefaultThresholds returns the calibrated production values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PeakStartHour:   7,
		PeakEndHour:     22,
		MinSoC:          20,
		FullSoC:         100,
		CarFullSoC:      90,
		ChargeCeiling:   95,
		HysteresisSoC:   5,
		SpreadSoC:       10,
		NeutralBand:     100,
		OverloadBand:    1500,
		RampWidth:       1000,
		ManualCutoff:    300,
		MaxPower:        2500,
		SolarRatio:      0.85,
		OffPeakCarPower: 1400,
	}
}

// SetDefaults fills zero fields with their default value.
func (t *Thresholds) SetDefaults() {
	d := DefaultThresholds()
	setInt(&t.PeakStartHour, d.PeakStartHour)
	setInt(&t.PeakEndHour, d.PeakEndHour)
	setFloat(&t.MinSoC, d.MinSoC)
	setFloat(&t.FullSoC, d.FullSoC)
	setFloat(&t.CarFullSoC, d.CarFullSoC)
	setFloat(&t.ChargeCeiling, d.ChargeCeiling)
	setFloat(&t.HysteresisSoC, d.HysteresisSoC)
	setFloat(&t.SpreadSoC, d.SpreadSoC)
	setWatts(&t.NeutralBand, d.NeutralBand)
	setWatts(&t.OverloadBand, d.OverloadBand)
	setWatts(&t.RampWidth, d.RampWidth)
	setWatts(&t.ManualCutoff, d.ManualCutoff)
	setWatts(&t.MaxPower, d.MaxPower)
	setFloat(&t.SolarRatio, d.SolarRatio)
	setWatts(&t.OffPeakCarPower, d.OffPeakCarPower)
}

// Validate checks that the thresholds are consistent.
func (t Thresholds) Validate() error {
	if t.PeakStartHour < 0 || t.PeakEndHour > 24 || t.PeakStartHour >= t.PeakEndHour {
		return fmt.Errorf("invalid peak window %d-%d", t.PeakStartHour, t.PeakEndHour)
	}
	if t.MinSoC < 0 || t.MinSoC >= t.ChargeCeiling || t.ChargeCeiling > t.FullSoC {
		return fmt.Errorf("invalid soc breakpoints min=%v ceiling=%v full=%v", t.MinSoC, t.ChargeCeiling, t.FullSoC)
	}
	if t.MaxPower <= 0 || t.RampWidth <= 0 {
		return fmt.Errorf("max_power and ramp_width must be positive")
	}
	if t.SolarRatio < 0 || t.SolarRatio > 1 {
		return fmt.Errorf("solar_ratio must be within [0,1]")
	}
	return nil
}

func setInt(v *int, d int) {
	if *v == 0 {
		*v = d
	}
}

func setFloat(v *float64, d float64) {
	if *v == 0 {
		*v = d
	}
}

func setWatts(v *model.Watts, d model.Watts) {
	if *v == 0 {
		*v = d
	}
}
