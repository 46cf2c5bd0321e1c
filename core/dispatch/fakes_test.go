package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kilianp07/gridbalance/core/device"
	"github.com/kilianp07/gridbalance/core/dispatch/logging"
	"github.com/kilianp07/gridbalance/core/metrics"
	"github.com/kilianp07/gridbalance/core/model"
)

var errUnreachable = errors.New("unreachable")

type fakeBatteries struct {
	mu       sync.Mutex
	statuses map[string]device.Status
	fail     map[string]error
	setFail  map[string]error
	commands map[string]device.Command
}

func newFakeBatteries() *fakeBatteries {
	return &fakeBatteries{
		statuses: map[string]device.Status{},
		fail:     map[string]error{},
		setFail:  map[string]error{},
		commands: map[string]device.Command{},
	}
}

func (f *fakeBatteries) set(id string, soc float64, mode string, power float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = device.Status{SoC: &soc, Mode: mode, OngridPower: power}
}

func (f *fakeBatteries) Status(_ context.Context, id string) (device.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[id]; err != nil {
		return device.Status{}, err
	}
	st, ok := f.statuses[id]
	if !ok {
		return device.Status{}, device.ErrNoReply
	}
	return st, nil
}

func (f *fakeBatteries) SetMode(_ context.Context, id string, cmd device.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setFail[id]; err != nil {
		return err
	}
	f.commands[id] = cmd
	return nil
}

func (f *fakeBatteries) command(id string) (device.Command, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.commands[id]
	return c, ok
}

type fakeMeter struct {
	mu    sync.Mutex
	grid  float64
	err   error
	calls int
	// block, when set, holds GridPower until closed.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeMeter) GridPower(ctx context.Context) (float64, error) {
	f.mu.Lock()
	f.calls++
	block, entered := f.block, f.entered
	f.mu.Unlock()
	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grid, f.err
}

func (f *fakeMeter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type panicCar struct{}

func (panicCar) CarState() model.CarState { panic("sensor exploded") }

type recordSink struct {
	mu     sync.Mutex
	cycles []metrics.CycleResult
	errs   []metrics.DeviceErrorEvent
	skips  []string
}

func (r *recordSink) RecordCycle(res metrics.CycleResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, res)
	return nil
}

func (r *recordSink) RecordDeviceError(ev metrics.DeviceErrorEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, ev)
	return nil
}

func (r *recordSink) RecordCycleSkipped(reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skips = append(r.skips, reason)
	return nil
}

func (r *recordSink) snapshot() ([]metrics.CycleResult, []metrics.DeviceErrorEvent, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]metrics.CycleResult(nil), r.cycles...),
		append([]metrics.DeviceErrorEvent(nil), r.errs...),
		append([]string(nil), r.skips...)
}

type memLogStore struct {
	mu      sync.Mutex
	records []logging.LogRecord
	closed  bool
}

func (m *memLogStore) Append(_ context.Context, r logging.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memLogStore) Query(_ context.Context, q logging.LogQuery) ([]logging.LogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []logging.LogRecord
	for _, r := range m.records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memLogStore) Close() error {
	m.closed = true
	return nil
}

// tuesday10 falls inside the weekday peak window.
func tuesday10() time.Time { return time.Date(2025, time.May, 6, 10, 0, 0, 0, time.UTC) }
