package p1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridbalance/core/device"
	"github.com/kilianp07/gridbalance/infra/logger"
	"github.com/kilianp07/gridbalance/simulator"
)

func TestGridPower(t *testing.T) {
	site := &simulator.Site{LoadW: 1200, SolarW: 3400}
	srv := httptest.NewServer(simulator.P1Handler(site))
	defer srv.Close()

	c := NewClient(Config{Address: srv.URL}, logger.NopLogger{})
	p, err := c.GridPower(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -2200, p, 1e-9)
}

func TestGridPowerMissingField(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"wifi_ssid":"home"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Address: srv.URL, Retries: 3, RetryDelayMS: 1}, logger.NopLogger{})
	_, err := c.GridPower(context.Background())
	assert.ErrorIs(t, err, device.ErrMissingField)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGridPowerRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"active_power_w":431.5}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Address: srv.URL, RetryDelayMS: 1}, logger.NopLogger{})
	p, err := c.GridPower(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 431.5, p)
	assert.Equal(t, int32(2), calls.Load())
}

func TestConfigURL(t *testing.T) {
	c := Config{Address: "192.168.2.192"}
	c.SetDefaults()
	assert.Equal(t, "http://192.168.2.192:80/api/v1/data", c.URL())
	assert.Equal(t, "http://127.0.0.1:8080/api/v1/data", Config{Address: "http://127.0.0.1:8080/"}.URL())
	assert.Error(t, Config{}.Validate())
}
