package dispatch

import (
	"fmt"
	"time"
)

// Config defines control loop settings.
type Config struct {
	IntervalSeconds int `json:"interval_seconds"`
	// Timezone is an IANA name used for the peak hour window. Empty means local time.
	Timezone string `json:"timezone"`
	// CycleTimeoutSeconds bounds gather and apply. Defaults to the interval.
	CycleTimeoutSeconds int `json:"cycle_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 60
	}
	if c.CycleTimeoutSeconds <= 0 {
		c.CycleTimeoutSeconds = c.IntervalSeconds
	}
}

// Validate checks the timezone and timings.
func (c Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.CycleTimeoutSeconds > c.IntervalSeconds {
		return fmt.Errorf("cycle_timeout_seconds %d exceeds interval_seconds %d", c.CycleTimeoutSeconds, c.IntervalSeconds)
	}
	return nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c Config) CycleTimeout() time.Duration {
	return time.Duration(c.CycleTimeoutSeconds) * time.Second
}
