package model

// CarState describes the EV charger connection and the power the policy
// wants the car to draw.
type CarState struct {
	IsCarConnected        bool  `json:"isCarConnected" yaml:"isCarConnected"`
	CarIntendedPowerUsage Watts `json:"carIntendedPowerUsage" yaml:"carIntendedPowerUsage"`
}
