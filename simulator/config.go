package simulator

import "fmt"

// Config holds parameters for a simulated site.
type Config struct {
	Batteries      int     `json:"batteries"`
	BatteryProfile string  `json:"battery_profile"`
	InitialSoC     float64 `json:"initial_soc"`
	LoadW          float64 `json:"load_w"`
	SolarPeakW     float64 `json:"solar_peak_w"`
	ListenHost     string  `json:"listen_host"`
	P1Address      string  `json:"p1_address"`
}

// Validate checks the simulator parameters.
func (c Config) Validate() error {
	if c.Batteries <= 0 {
		return fmt.Errorf("batteries must be positive")
	}
	if c.InitialSoC < 0 || c.InitialSoC > 100 {
		return fmt.Errorf("initial_soc must be within [0,100]")
	}
	return nil
}

// Profile returns capacity and power limit for a named battery size.
func Profile(name string) (capacityWh, maxPowerW float64) {
	switch name {
	case "small":
		return 2560, 800
	case "large":
		return 10240, 2500
	default:
		return 5120, 2500
	}
}
