package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/gridbalance/core/events"
	coremetrics "github.com/kilianp07/gridbalance/core/metrics"
	"github.com/kilianp07/gridbalance/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records command
// events. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	rec, ok := sink.(coremetrics.CommandRecorder)
	if !ok {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if e, ok := ev.(events.CommandEvent); ok {
					_ = rec.RecordCommand(commandEvent(e))
				}
			}
		}
	}()
}

func commandEvent(e events.CommandEvent) coremetrics.CommandEvent {
	out := coremetrics.CommandEvent{
		CycleID:   e.CycleID,
		BatteryID: e.BatteryID,
		Mode:      e.Command.Mode,
		Power:     e.Command.Power,
		Latency:   e.Latency,
		Time:      time.Now(),
	}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return out
}
