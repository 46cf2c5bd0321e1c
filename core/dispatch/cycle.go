package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/gridbalance/core/batterystatus"
	"github.com/kilianp07/gridbalance/core/device"
	"github.com/kilianp07/gridbalance/core/dispatch/logging"
	"github.com/kilianp07/gridbalance/core/events"
	"github.com/kilianp07/gridbalance/core/metrics"
	"github.com/kilianp07/gridbalance/core/model"
	coremon "github.com/kilianp07/gridbalance/core/monitoring"
	"github.com/kilianp07/gridbalance/core/policy"
	"github.com/kilianp07/gridbalance/internal/eventbus"
)

// CycleReport is the outcome of one control cycle.
type CycleReport struct {
	CycleID   string
	Time      time.Time
	GridUsage float64
	Input     []model.Battery
	Decision  policy.Decision
	// Errors maps battery IDs to read or apply failures.
	Errors   map[string]string
	Duration time.Duration
}

type snapshot struct {
	grid      float64
	batteries []model.Battery
	errors    map[string]string
}

// Cycle runs gather, decide and apply once. Cycles never overlap: a call
// made while another cycle is in flight returns ErrCycleRunning.
func (m *Manager) Cycle(ctx context.Context) (CycleReport, error) {
	if !m.running.CompareAndSwap(false, true) {
		m.recordSkip("overlap")
		return CycleReport{}, ErrCycleRunning
	}
	defer m.running.Store(false)
	defer coremon.Recover()

	m.mu.Lock()
	now, loc := m.now, m.loc
	m.mu.Unlock()

	start := now()
	rep := CycleReport{CycleID: uuid.NewString(), Time: start}

	snap, err := m.gather(ctx)
	if err != nil {
		m.logger.Errorf("cycle %s aborted: %v", rep.CycleID, err)
		coremon.CaptureException(err, map[string]string{"module": "dispatch", "cycle_id": rep.CycleID})
		return rep, err
	}
	rep.GridUsage = snap.grid
	rep.Input = snap.batteries
	rep.Errors = snap.errors

	car := m.car.CarState()
	dec, err := m.policy.Decide(snap.batteries, car, snap.grid, start.In(loc))
	if err != nil {
		m.recordSkip("decide")
		return rep, fmt.Errorf("decide: %w", err)
	}
	rep.Decision = dec
	m.logger.Infof("cycle %s: grid=%.0fW imbalance=%.0fW auto=%s car=%dW",
		rep.CycleID, snap.grid, dec.Diagnostics.EffectiveImbalance,
		dec.Batteries[dec.Diagnostics.NewAutoIndex].ID, dec.Car.CarIntendedPowerUsage)

	for id, msg := range m.apply(ctx, rep.CycleID, dec.Batteries) {
		rep.Errors[id] = msg
	}
	rep.Duration = now().Sub(start)

	m.mu.Lock()
	for _, b := range dec.Batteries {
		m.previous[b.ID] = b
	}
	last := rep
	m.last = &last
	m.mu.Unlock()

	m.publish(ctx, rep, car)
	return rep, nil
}

// gather reads the meter and all batteries in parallel. Unreadable batteries
// are left out of the snapshot.
func (m *Manager) gather(ctx context.Context) (snapshot, error) {
	snap := snapshot{errors: map[string]string{}}
	statuses := make([]*device.Status, len(m.ids))
	var meterErr error

	var g errgroup.Group
	g.Go(func() error {
		grid, err := m.meter.GridPower(ctx)
		if err != nil {
			meterErr = err
			return nil
		}
		snap.grid = grid
		return nil
	})
	var mu sync.Mutex
	for i, id := range m.ids {
		i, id := i, id
		g.Go(func() error {
			st, err := m.batteries.Status(ctx, id)
			if err != nil {
				mu.Lock()
				snap.errors[id] = err.Error()
				mu.Unlock()
				m.recordDeviceError(id, "status", err)
				if s := m.statusStoreRef(); s != nil {
					s.RecordFailure(id, err)
				}
				return nil
			}
			st.ID = id
			statuses[i] = &st
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	at := m.now()
	for _, st := range statuses {
		if st == nil {
			continue
		}
		if m.statusStore != nil {
			m.statusStore.RecordTelemetry(*st, at)
		}
		snap.batteries = append(snap.batteries, m.toBattery(*st))
	}
	m.mu.Unlock()

	if meterErr != nil {
		m.recordDeviceError("meter", "grid_power", meterErr)
		m.recordSkip("meter")
		return snap, fmt.Errorf("%w: %w", ErrMeterUnavailable, meterErr)
	}
	if len(snap.batteries) == 0 {
		m.recordSkip("no_batteries")
		return snap, ErrNoBatteries
	}
	return snap, nil
}

// toBattery converts telemetry, falling back to the previous decision when
// the device did not report its mode. Callers hold m.mu.
func (m *Manager) toBattery(st device.Status) model.Battery {
	b := st.Battery()
	prev, ok := m.previous[st.ID]
	if !ok {
		return b
	}
	if st.Mode == "" {
		b.IsAutomatic = prev.IsAutomatic
		b.IsManual = prev.IsManual
	}
	if b.IsManual {
		b.ManualSetPower = prev.ManualSetPower
	}
	return b
}

// apply sends every command concurrently and returns failures by battery ID.
func (m *Manager) apply(ctx context.Context, cycleID string, bs []model.Battery) map[string]string {
	failed := map[string]string{}
	var mu sync.Mutex
	var g errgroup.Group
	for _, b := range bs {
		b := b
		g.Go(func() error {
			cmd := device.CommandFor(b)
			start := time.Now()
			err := m.batteries.SetMode(ctx, b.ID, cmd)
			latency := time.Since(start)

			last := batterystatus.LastCommand{CycleID: cycleID, Mode: cmd.Mode, Power: cmd.Power, Timestamp: start}
			if err != nil {
				last.Error = err.Error()
				m.logger.Warnf("set mode %s on %s: %v", cmd.Mode, b.ID, err)
				m.recordDeviceError(b.ID, "set_mode", err)
				mu.Lock()
				failed[b.ID] = err.Error()
				mu.Unlock()
			}
			if s := m.statusStoreRef(); s != nil {
				s.RecordCommand(b.ID, last)
			}
			if bus := m.busRef(); bus != nil {
				bus.Publish(events.CommandEvent{CycleID: cycleID, BatteryID: b.ID, Command: cmd, Err: err, Latency: latency})
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

// publish hands the cycle to the decision log, the metrics sink and the bus.
func (m *Manager) publish(ctx context.Context, rep CycleReport, car model.CarState) {
	m.mu.Lock()
	store, sink, bus := m.store, m.metrics, m.bus
	m.mu.Unlock()

	rec := logging.LogRecord{
		Timestamp: rep.Time,
		CycleID:   rep.CycleID,
		GridUsage: rep.GridUsage,
		Input:     rep.Input,
		Car:       car,
		Decision:  rep.Decision,
	}
	if len(rep.Errors) > 0 {
		rec.Errors = rep.Errors
	}
	if err := store.Append(ctx, rec); err != nil {
		m.logger.Errorf("decision log append: %v", err)
	}
	if err := sink.RecordCycle(cycleResult(rep, car)); err != nil {
		m.logger.Errorf("metrics error: %v", err)
	}
	if bus != nil {
		bus.Publish(events.CycleEvent{
			CycleID:   rep.CycleID,
			Time:      rep.Time,
			GridUsage: rep.GridUsage,
			Decision:  rep.Decision,
			Duration:  rep.Duration,
		})
	}
}

func cycleResult(rep CycleReport, car model.CarState) metrics.CycleResult {
	d := rep.Decision
	res := metrics.CycleResult{
		CycleID:            rep.CycleID,
		Time:               rep.Time,
		GridUsage:          rep.GridUsage,
		EffectiveImbalance: d.Diagnostics.EffectiveImbalance,
		CarIntent:          d.Car.CarIntendedPowerUsage,
		CarConnected:       car.IsCarConnected,
		LowHours:           d.Diagnostics.LowHours,
		AutoSufficient:     d.Diagnostics.AutoSufficient,
		Duration:           rep.Duration,
	}
	for i, b := range d.Batteries {
		if i == d.Diagnostics.NewAutoIndex {
			res.AutoID = b.ID
		}
		res.Batteries = append(res.Batteries, metrics.BatteryOutcome{
			ID:             b.ID,
			Charge:         b.Charge,
			Mode:           b.Mode(),
			Setpoint:       device.CommandFor(b).Power,
			EffectivePower: b.EffectivePower,
		})
	}
	return res
}

func (m *Manager) statusStoreRef() batterystatus.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusStore
}

func (m *Manager) busRef() eventbus.EventBus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bus
}

func (m *Manager) recordDeviceError(dev, op string, err error) {
	m.mu.Lock()
	sink, now := m.metrics, m.now
	m.mu.Unlock()
	rec, ok := sink.(metrics.DeviceErrorRecorder)
	if !ok {
		return
	}
	if rerr := rec.RecordDeviceError(metrics.DeviceErrorEvent{Device: dev, Op: op, Error: err.Error(), Time: now()}); rerr != nil {
		m.logger.Errorf("metrics error: %v", rerr)
	}
}

func (m *Manager) recordSkip(reason string) {
	m.mu.Lock()
	sink := m.metrics
	m.mu.Unlock()
	if rec, ok := sink.(metrics.CycleSkipRecorder); ok {
		if err := rec.RecordCycleSkipped(reason); err != nil {
			m.logger.Errorf("metrics error: %v", err)
		}
	}
}
