package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/gridbalance/core/metrics"
	"github.com/kilianp07/gridbalance/core/model"
)

// PromSink records control cycles in Prometheus metrics.
type PromSink struct {
	cycles       *prometheus.CounterVec
	duration     prometheus.Histogram
	grid         prometheus.Gauge
	imbalance    prometheus.Gauge
	carIntent    prometheus.Gauge
	lowHours     prometheus.Gauge
	soc          *prometheus.GaugeVec
	setpoint     *prometheus.GaugeVec
	flow         *prometheus.GaugeVec
	mode         *prometheus.GaugeVec
	commands     *prometheus.CounterVec
	commandLat   prometheus.Histogram
	deviceErrors *prometheus.CounterVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbalance_cycles_total",
			Help: "Control cycles by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridbalance_cycle_duration_seconds",
			Help:    "Time from snapshot gathering to the last command",
			Buckets: prometheus.DefBuckets,
		}),
		grid: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridbalance_grid_power_watts",
			Help: "Measured grid power, positive on import",
		}),
		imbalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridbalance_effective_imbalance_watts",
			Help: "Net imbalance the batteries were asked to absorb",
		}),
		carIntent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridbalance_car_intent_watts",
			Help: "Power the EV charger should draw",
		}),
		lowHours: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridbalance_low_hours",
			Help: "1 during off-peak hours",
		}),
		soc: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridbalance_battery_soc_percent",
			Help: "Battery state of charge",
		}, []string{"battery"}),
		setpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridbalance_battery_setpoint_watts",
			Help: "Manual setpoint sent to the battery",
		}, []string{"battery"}),
		flow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridbalance_battery_effective_power_watts",
			Help: "Last reported battery flow",
		}, []string{"battery"}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridbalance_battery_mode",
			Help: "1 for the current operating mode of the battery",
		}, []string{"battery", "mode"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbalance_commands_total",
			Help: "Battery commands by mode and result",
		}, []string{"battery", "mode", "success"}),
		commandLat: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridbalance_command_latency_seconds",
			Help:    "Time to get a reply to a battery command",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 1.5, 3, 5},
		}),
		deviceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbalance_device_errors_total",
			Help: "Failed device interactions",
		}, []string{"device", "op"}),
	}
	var err error
	if s.cycles, err = register(reg, s.cycles); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.grid, err = register(reg, s.grid); err != nil {
		return nil, err
	}
	if s.imbalance, err = register(reg, s.imbalance); err != nil {
		return nil, err
	}
	if s.carIntent, err = register(reg, s.carIntent); err != nil {
		return nil, err
	}
	if s.lowHours, err = register(reg, s.lowHours); err != nil {
		return nil, err
	}
	if s.soc, err = register(reg, s.soc); err != nil {
		return nil, err
	}
	if s.setpoint, err = register(reg, s.setpoint); err != nil {
		return nil, err
	}
	if s.flow, err = register(reg, s.flow); err != nil {
		return nil, err
	}
	if s.mode, err = register(reg, s.mode); err != nil {
		return nil, err
	}
	if s.commands, err = register(reg, s.commands); err != nil {
		return nil, err
	}
	if s.commandLat, err = register(reg, s.commandLat); err != nil {
		return nil, err
	}
	if s.deviceErrors, err = register(reg, s.deviceErrors); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

var modes = []model.Mode{model.ModeAuto, model.ModeManual, model.ModeIdle}

// RecordCycle updates the gauges from the cycle outcome.
func (s *PromSink) RecordCycle(res coremetrics.CycleResult) error {
	s.cycles.WithLabelValues("decided").Inc()
	s.duration.Observe(res.Duration.Seconds())
	s.grid.Set(res.GridUsage)
	s.imbalance.Set(res.EffectiveImbalance)
	s.carIntent.Set(float64(res.CarIntent))
	if res.LowHours {
		s.lowHours.Set(1)
	} else {
		s.lowHours.Set(0)
	}
	for _, b := range res.Batteries {
		s.soc.WithLabelValues(b.ID).Set(b.Charge)
		s.setpoint.WithLabelValues(b.ID).Set(float64(b.Setpoint))
		s.flow.WithLabelValues(b.ID).Set(float64(b.EffectivePower))
		for _, m := range modes {
			v := 0.0
			if m == b.Mode {
				v = 1
			}
			s.mode.WithLabelValues(b.ID, string(m)).Set(v)
		}
	}
	return nil
}

// RecordCommand counts commands and observes their latency.
func (s *PromSink) RecordCommand(ev coremetrics.CommandEvent) error {
	s.commands.WithLabelValues(ev.BatteryID, string(ev.Mode), strconv.FormatBool(ev.Error == "")).Inc()
	if ev.Error == "" {
		s.commandLat.Observe(ev.Latency.Seconds())
	}
	return nil
}

// RecordDeviceError counts failed device interactions.
func (s *PromSink) RecordDeviceError(ev coremetrics.DeviceErrorEvent) error {
	s.deviceErrors.WithLabelValues(ev.Device, ev.Op).Inc()
	return nil
}

// RecordCycleSkipped counts cycles aborted before deciding.
func (s *PromSink) RecordCycleSkipped(reason string) error {
	s.cycles.WithLabelValues("skipped_" + reason).Inc()
	return nil
}
