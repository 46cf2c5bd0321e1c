package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridbalance/config"
	"github.com/kilianp07/gridbalance/core/batterystatus"
	"github.com/kilianp07/gridbalance/core/dispatch/logging"
	"github.com/kilianp07/gridbalance/core/factory"
	"github.com/kilianp07/gridbalance/simulator"
)

func simulatedConfig(t *testing.T, ctx context.Context) *config.Config {
	t.Helper()
	site := &simulator.Site{LoadW: 2000}
	var addrs []string
	for _, soc := range []float64{75, 45} {
		b := simulator.NewBattery(5120, soc, 2500)
		site.Batteries = append(site.Batteries, b)
		srv, err := simulator.ListenES("127.0.0.1:0", b)
		require.NoError(t, err)
		go func() { _ = srv.Serve(ctx) }()
		addrs = append(addrs, srv.Addr())
	}
	meter := httptest.NewServer(simulator.P1Handler(site))
	t.Cleanup(meter.Close)

	cfg := &config.Config{}
	cfg.Batteries.Addresses = addrs
	cfg.Batteries.TimeoutMS = 200
	cfg.Batteries.RetryDelayMS = 10
	cfg.Meter.Address = meter.URL
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "prometheus"}}
	cfg.Logging = logging.Config{Backend: "jsonl", Path: filepath.Join(t.TempDir(), "decisions.log")}
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.HTTP.Token = "tok"
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestServiceCycleAndAPI(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := New(simulatedConfig(t, ctx))
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Close()) }()

	h := svc.Handler()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Contains(t, rr.Body.String(), "starting")

	rep, err := svc.Manager.Cycle(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Errors)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/batteries/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var statuses []batterystatus.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &statuses))
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.True(t, st.Reachable)
		assert.Equal(t, rep.CycleID, st.LastCommand.CycleID)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/decisions/logs", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var recs []logging.LogRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, rep.CycleID, recs[0].CycleID)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ok"`)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), "gridbalance_cycles_total")
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, err := New(simulatedConfig(t, ctx))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()

	assert.Eventually(t, func() bool {
		_, ok := svc.Manager.LastReport()
		return ok
	}, 5*time.Second, 20*time.Millisecond)
	stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewRejectsUnknownSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := simulatedConfig(t, ctx)
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "statsd"}}
	_, err := New(cfg)
	assert.ErrorContains(t, err, "metrics sink")
}
