package mqtt

import (
	"context"
	"time"

	"github.com/kilianp07/gridbalance/core/device"
	"github.com/kilianp07/gridbalance/core/events"
	"github.com/kilianp07/gridbalance/core/model"
	"github.com/kilianp07/gridbalance/core/policy"
	"github.com/kilianp07/gridbalance/infra/logger"
	"github.com/kilianp07/gridbalance/internal/eventbus"
)

// DecisionMessage is the retained payload published on <base>/decision.
type DecisionMessage struct {
	CycleID     string             `json:"cycle_id"`
	Timestamp   time.Time          `json:"timestamp"`
	GridUsage   float64            `json:"grid_usage"`
	Car         model.CarState     `json:"car"`
	Batteries   []BatteryMessage   `json:"batteries"`
	Diagnostics policy.Diagnostics `json:"diagnostics"`
}

// BatteryMessage is the retained payload published on <base>/battery/<id>/state.
type BatteryMessage struct {
	ID             string      `json:"id"`
	Charge         float64     `json:"charge"`
	Mode           model.Mode  `json:"mode"`
	ManualSetPower model.Watts `json:"manual_set_power"`
	EffectivePower model.Watts `json:"effective_power"`
}

// NewDecisionMessage flattens a cycle event into its wire form.
func NewDecisionMessage(e events.CycleEvent) DecisionMessage {
	msg := DecisionMessage{
		CycleID:     e.CycleID,
		Timestamp:   e.Time.UTC(),
		GridUsage:   e.GridUsage,
		Car:         e.Decision.Car,
		Diagnostics: e.Decision.Diagnostics,
		Batteries:   make([]BatteryMessage, 0, len(e.Decision.Batteries)),
	}
	for _, b := range e.Decision.Batteries {
		msg.Batteries = append(msg.Batteries, BatteryMessage{
			ID:             b.ID,
			Charge:         b.Charge,
			Mode:           b.Mode(),
			ManualSetPower: device.CommandFor(b).Power,
			EffectivePower: b.EffectivePower,
		})
	}
	return msg
}

// Publisher sends decisions to the broker.
type Publisher interface {
	PublishJSON(kind, topic string, v any) error
	Topic(parts ...string) string
}

// PublishDecision publishes the decision and one state message per battery.
// All messages are attempted; the first error is returned.
func PublishDecision(p Publisher, e events.CycleEvent) error {
	msg := NewDecisionMessage(e)
	first := p.PublishJSON("decision", p.Topic("decision"), msg)
	for _, b := range msg.Batteries {
		if b.ID == "" {
			continue
		}
		if err := p.PublishJSON("state", p.Topic("battery", b.ID, "state"), b); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// StartDecisionPublisher subscribes to the event bus and publishes every
// cycle event. It stops when the context is canceled or the bus is closed.
func StartDecisionPublisher(ctx context.Context, bus eventbus.EventBus, p Publisher, log logger.Logger) {
	if bus == nil || p == nil {
		return
	}
	if log == nil {
		log = logger.NopLogger{}
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
				e, ok := ev.(events.CycleEvent)
				if !ok {
					continue
				}
				if err := PublishDecision(p, e); err != nil {
					log.Errorf("publish decision %s: %v", e.CycleID, err)
				}
			}
		}
	}()
}
