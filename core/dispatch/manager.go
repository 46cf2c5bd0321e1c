// Package dispatch runs the control cycle: it gathers a fleet snapshot,
// asks the policy for a decision and applies it to the devices.
package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/gridbalance/core/batterystatus"
	"github.com/kilianp07/gridbalance/core/device"
	"github.com/kilianp07/gridbalance/core/dispatch/logging"
	"github.com/kilianp07/gridbalance/core/logger"
	"github.com/kilianp07/gridbalance/core/metrics"
	"github.com/kilianp07/gridbalance/core/model"
	"github.com/kilianp07/gridbalance/core/policy"
	"github.com/kilianp07/gridbalance/internal/eventbus"
)

var (
	// ErrMeterUnavailable aborts a cycle when the grid reading failed.
	ErrMeterUnavailable = errors.New("grid meter unavailable")
	// ErrNoBatteries aborts a cycle when no battery could be read.
	ErrNoBatteries = errors.New("no battery reachable")
	// ErrCycleRunning is returned when a cycle is requested while one is in flight.
	ErrCycleRunning = errors.New("control cycle already running")
)

// Manager owns the control loop state between cycles.
type Manager struct {
	ids       []string
	batteries device.BatteryClient
	meter     device.Meter
	car       device.CarSensor
	policy    policy.Policy
	logger    logger.Logger

	mu          sync.Mutex
	metrics     metrics.MetricsSink
	bus         eventbus.EventBus
	store       logging.LogStore
	statusStore batterystatus.Store
	loc         *time.Location
	now         func() time.Time
	// previous decided battery per ID, used when a device omits its mode
	previous map[string]model.Battery
	last     *CycleReport

	running atomic.Bool
}

// NewManager creates a manager for the batteries identified by ids.
func NewManager(ids []string, batteries device.BatteryClient, meter device.Meter, car device.CarSensor, pol policy.Policy, log logger.Logger) (*Manager, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("dispatch: no battery configured")
	}
	if batteries == nil || meter == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewManager")
	}
	if car == nil {
		car = device.StaticCar{}
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Manager{
		ids:       append([]string(nil), ids...),
		batteries: batteries,
		meter:     meter,
		car:       car,
		policy:    pol,
		logger:    log,
		metrics:   metrics.NopSink{},
		store:     logging.NopStore{},
		loc:       time.Local,
		now:       time.Now,
		previous:  make(map[string]model.Battery),
	}, nil
}

// SetMetrics configures the sink receiving cycle results.
func (m *Manager) SetMetrics(sink metrics.MetricsSink) {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	m.mu.Lock()
	m.metrics = sink
	m.mu.Unlock()
}

// SetEventBus configures the bus receiving cycle and command events.
func (m *Manager) SetEventBus(bus eventbus.EventBus) {
	m.mu.Lock()
	m.bus = bus
	m.mu.Unlock()
}

// SetLogStore configures the store used to persist decision logs.
func (m *Manager) SetLogStore(store logging.LogStore) {
	if store == nil {
		store = logging.NopStore{}
	}
	m.mu.Lock()
	m.store = store
	m.mu.Unlock()
}

// SetStatusStore configures the store used to persist battery status information.
func (m *Manager) SetStatusStore(store batterystatus.Store) {
	m.mu.Lock()
	m.statusStore = store
	m.mu.Unlock()
}

// SetLocation sets the timezone used to evaluate peak hours.
func (m *Manager) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	m.mu.Lock()
	m.loc = loc
	m.mu.Unlock()
}

// SetClock replaces the time source. Intended for tests and replays.
func (m *Manager) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// LastReport returns the outcome of the latest completed cycle.
func (m *Manager) LastReport() (CycleReport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return CycleReport{}, false
	}
	return *m.last, true
}

// Close releases the decision log store.
func (m *Manager) Close() error {
	m.mu.Lock()
	store := m.store
	m.mu.Unlock()
	return store.Close()
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}
