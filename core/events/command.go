package events

import (
	"time"

	"github.com/kilianp07/gridbalance/core/device"
)

// CommandEvent is published for each battery command sent or failed.
type CommandEvent struct {
	CycleID   string
	BatteryID string
	Command   device.Command
	Err       error
	Latency   time.Duration
}

// CarEvent is published when the charger connection state changes.
type CarEvent struct {
	Connected bool
	Time      time.Time
}
