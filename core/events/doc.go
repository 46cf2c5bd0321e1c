// Package events defines the control loop events emitted on the event bus.
//
// Available event types:
//   - CycleEvent: a decision was computed and applied
//   - CommandEvent: result of one battery command
//   - CarEvent: the charger connection changed
package events
