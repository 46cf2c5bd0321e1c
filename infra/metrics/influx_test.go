package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/gridbalance/core/metrics"
	"github.com/kilianp07/gridbalance/core/model"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineRecorder) handler(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	l.mu.Lock()
	for _, ln := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if ln != "" {
			l.lines = append(l.lines, ln)
		}
	}
	l.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func TestInfluxSinkRecordCycle(t *testing.T) {
	rec := &lineRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	require.NoError(t, sink.RecordCycle(sampleCycle()))

	require.Len(t, rec.lines, 3)
	assert.True(t, strings.HasPrefix(rec.lines[0], "control_cycle,"))
	assert.Contains(t, rec.lines[0], "grid_power_w=4000")
	assert.Contains(t, rec.lines[2], "battery=10.0.0.3")
	assert.Contains(t, rec.lines[2], "setpoint_w=-2500i")
}

func TestInfluxSinkRecordCommand(t *testing.T) {
	rec := &lineRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	require.NoError(t, sink.RecordCommand(coremetrics.CommandEvent{CycleID: "c1", BatteryID: "b1", Mode: model.ModeManual, Power: 900}))
	require.Len(t, rec.lines, 1)
	assert.Contains(t, rec.lines[0], "success=true")
	assert.Contains(t, rec.lines[0], "power_w=900i")
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	_, isInflux := sink.(*InfluxSink)
	assert.False(t, isInflux)
	assert.True(t, called)
}
