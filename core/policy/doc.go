// Package policy decides, once per control cycle, which battery runs in
// automatic mode, which batteries receive a manual setpoint and how much power
// the EV charger should draw.
//
// Every stage is a pure function over value snapshots. Decide composes them in
// order: time classification, car intent, imbalance, candidate scoring,
// hysteresis, capacity guard, manual allocation and SoC boundary clamping.
//
// Sign convention: positive watts charge a battery or import from the grid,
// negative watts discharge a battery or export. The allocator is the only
// place that flips the sign of the imbalance to obtain a battery setpoint.
package policy
