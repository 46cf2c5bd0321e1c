// Package app wires the configuration into a running control service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kilianp07/gridbalance/api/batteries"
	"github.com/kilianp07/gridbalance/api/decisions"
	"github.com/kilianp07/gridbalance/api/health"
	"github.com/kilianp07/gridbalance/config"
	"github.com/kilianp07/gridbalance/core/batterystatus"
	"github.com/kilianp07/gridbalance/core/device"
	"github.com/kilianp07/gridbalance/core/dispatch"
	"github.com/kilianp07/gridbalance/core/dispatch/logging"
	coremetrics "github.com/kilianp07/gridbalance/core/metrics"
	coremon "github.com/kilianp07/gridbalance/core/monitoring"
	"github.com/kilianp07/gridbalance/core/policy"
	"github.com/kilianp07/gridbalance/infra/battery"
	"github.com/kilianp07/gridbalance/infra/logger"
	"github.com/kilianp07/gridbalance/infra/metrics"
	"github.com/kilianp07/gridbalance/infra/monitoring"
	"github.com/kilianp07/gridbalance/infra/mqtt"
	"github.com/kilianp07/gridbalance/infra/p1"
	"github.com/kilianp07/gridbalance/internal/eventbus"
)

// Service orchestrates the control loop, its observers and the HTTP API.
type Service struct {
	Manager *dispatch.Manager
	Status  *batterystatus.MemoryStore
	Logs    logging.LogStore

	cfg    config.Config
	bus    *eventbus.Bus
	sink   coremetrics.MetricsSink
	mqtt   *mqtt.PahoClient
	server *http.Server
	log    logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("monitoring: %w", err)
	}
	coremon.Init(mon)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	store, err := logging.NewStore(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("decision log: %w", err)
	}
	loc, err := cfg.Control.Location()
	if err != nil {
		return nil, err
	}

	svc := &Service{
		Status: batterystatus.NewMemoryStore(),
		Logs:   store,
		cfg:    *cfg,
		bus:    eventbus.New(),
		sink:   sink,
		log:    logg,
	}

	var car device.CarSensor = device.StaticCar{Connected: cfg.Car.Connected}
	if cfg.MQTT.Enabled() {
		client, err := mqtt.NewPahoClient(cfg.MQTT, logger.New("mqtt"))
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.mqtt = client
		if cfg.Car.Topic != "" {
			sensor, err := mqtt.NewCarSensor(client, cfg.Car.Topic, cfg.Car.QoS, svc.bus, logger.New("car"))
			if err != nil {
				svc.closeQuietly()
				return nil, fmt.Errorf("car sensor: %w", err)
			}
			car = sensor
		}
	}

	mgr, err := dispatch.NewManager(
		cfg.Batteries.Addresses,
		battery.NewClient(cfg.Batteries, logger.New("battery")),
		p1.NewClient(cfg.Meter, logger.New("p1")),
		car,
		policy.New(cfg.Policy),
		logger.New("dispatch"),
	)
	if err != nil {
		svc.closeQuietly()
		return nil, fmt.Errorf("dispatch manager: %w", err)
	}
	mgr.SetMetrics(sink)
	mgr.SetEventBus(svc.bus)
	mgr.SetLogStore(store)
	mgr.SetStatusStore(svc.Status)
	mgr.SetLocation(loc)
	svc.Manager = mgr

	svc.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return svc, nil
}

// Handler returns the HTTP API routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/batteries/status", batteries.NewStatusHandler(s.Status))
	mux.Handle("/api/decisions/logs", decisions.NewLogHandler(s.Logs, s.cfg.HTTP.Token))
	mux.Handle("/healthz", health.NewHandler(s.lastCycle, 3*s.cfg.Control.Interval(), nil))
	mux.Handle("/metrics", metrics.Handler(nil))
	return mux
}

func (s *Service) lastCycle() (time.Time, bool) {
	if s.Manager == nil {
		return time.Time{}, false
	}
	rep, ok := s.Manager.LastReport()
	return rep.Time, ok
}

// Run starts the observers, the HTTP API and the control loop, and blocks
// until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	if s.mqtt != nil {
		mqtt.StartDecisionPublisher(ctx, s.bus, s.mqtt, logger.New("mqtt_publisher"))
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("http api listening on %s", s.cfg.HTTP.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		s.log.Infof("control loop every %s over %d batteries", s.cfg.Control.Interval(), len(s.cfg.Batteries.Addresses))
		s.Manager.Run(ctx, s.cfg.Control.Interval(), s.cfg.Control.CycleTimeout())
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("http shutdown: %v", err)
	}
	if runErr == nil {
		<-loopDone
	}
	return runErr
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.Manager != nil {
		errs = append(errs, s.Manager.Close())
	} else if s.Logs != nil {
		errs = append(errs, s.Logs.Close())
	}
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	s.bus.Close()
	if c, ok := s.sink.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}

func (s *Service) closeQuietly() {
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	_ = s.Logs.Close()
	s.bus.Close()
}
