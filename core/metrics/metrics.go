package metrics

import (
	"time"

	"github.com/kilianp07/gridbalance/core/model"
)

// BatteryOutcome is the state of one battery at the end of a cycle.
type BatteryOutcome struct {
	ID             string
	Charge         float64
	Mode           model.Mode
	Setpoint       model.Watts
	EffectivePower model.Watts
}

// CycleResult summarises one control cycle.
type CycleResult struct {
	CycleID            string
	Time               time.Time
	GridUsage          float64
	EffectiveImbalance float64
	CarIntent          model.Watts
	CarConnected       bool
	LowHours           bool
	AutoSufficient     bool
	AutoID             string
	Batteries          []BatteryOutcome
	Duration           time.Duration
}

// MetricsSink records control cycles for observability purposes.
type MetricsSink interface {
	RecordCycle(res CycleResult) error
}

// CommandEvent is the outcome of a single battery command.
type CommandEvent struct {
	CycleID   string
	BatteryID string
	Mode      model.Mode
	Power     model.Watts
	Latency   time.Duration
	Error     string
	Time      time.Time
}

// CommandRecorder records battery commands.
type CommandRecorder interface {
	RecordCommand(ev CommandEvent) error
}

// DeviceErrorEvent captures a failed device interaction.
type DeviceErrorEvent struct {
	Device string // battery address or "meter"
	Op     string
	Error  string
	Time   time.Time
}

// DeviceErrorRecorder records device failures.
type DeviceErrorRecorder interface {
	RecordDeviceError(ev DeviceErrorEvent) error
}

// CycleSkipRecorder counts cycles aborted before a decision was made.
type CycleSkipRecorder interface {
	RecordCycleSkipped(reason string) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordCycle(CycleResult) error            { return nil }
func (NopSink) RecordCommand(CommandEvent) error         { return nil }
func (NopSink) RecordDeviceError(DeviceErrorEvent) error { return nil }
func (NopSink) RecordCycleSkipped(string) error          { return nil }
