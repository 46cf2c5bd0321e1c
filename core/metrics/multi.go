package metrics

import (
	"errors"
	"io"
)

// MultiSink fans out records to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCycle forwards the record to every sink and joins their errors.
func (m *MultiSink) RecordCycle(res CycleResult) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordCycle(res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordCommand forwards command events to sinks supporting them.
func (m *MultiSink) RecordCommand(ev CommandEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(CommandRecorder); ok {
			if err := rec.RecordCommand(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordDeviceError forwards device failures.
func (m *MultiSink) RecordDeviceError(ev DeviceErrorEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(DeviceErrorRecorder); ok {
			if err := rec.RecordDeviceError(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordCycleSkipped forwards skipped cycles.
func (m *MultiSink) RecordCycleSkipped(reason string) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(CycleSkipRecorder); ok {
			if err := rec.RecordCycleSkipped(reason); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink implementing io.Closer.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
