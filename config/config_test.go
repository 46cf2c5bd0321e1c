package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridbalance/core/model"
)

const sampleYAML = `batteries:
  addresses: ["192.168.2.108", "192.168.2.147", "192.168.2.233"]
  timeout_ms: 1000
meter:
  address: "192.168.2.192"
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "home"
  base_topic: "home/energy"
car:
  topic: "home/car/connected"
  qos: 1
control:
  interval_seconds: 30
  timezone: "Europe/Amsterdam"
policy:
  max_power: 2000
  exclude_battery_flow: true
metrics:
  sinks:
    - type: "prometheus"
logging:
  backend: "sqlite"
  path: "decisions.db"
http:
  token: "secret"
sentry:
  dsn: ""
`

func write(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(write(t, "config.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"192.168.2.108", "192.168.2.147", "192.168.2.233"}, cfg.Batteries.Addresses)
	assert.Equal(t, 1000, cfg.Batteries.TimeoutMS)
	assert.Equal(t, 30000, cfg.Batteries.Port)
	assert.Equal(t, "192.168.2.192", cfg.Meter.Address)
	assert.Equal(t, 80, cfg.Meter.Port)
	assert.Equal(t, "home/energy", cfg.MQTT.BaseTopic)
	assert.Equal(t, "home/energy/status", cfg.MQTT.LWTTopic)
	assert.Equal(t, "home/car/connected", cfg.Car.Topic)
	assert.Equal(t, byte(1), cfg.Car.QoS)
	assert.Equal(t, 30, cfg.Control.IntervalSeconds)
	assert.Equal(t, 30, cfg.Control.CycleTimeoutSeconds)
	assert.Equal(t, model.Watts(2000), cfg.Policy.MaxPower)
	assert.Equal(t, model.Watts(1500), cfg.Policy.OverloadBand)
	assert.True(t, cfg.Policy.ExcludeBatteryFlow)
	require.Len(t, cfg.Metrics.Sinks, 1)
	assert.Equal(t, "prometheus", cfg.Metrics.Sinks[0].Type)
	assert.Equal(t, "sqlite", cfg.Logging.Backend)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "secret", cfg.HTTP.Token)
}

func TestLoadJSON(t *testing.T) {
	data := `{"batteries":{"addresses":["10.0.0.1"]},"meter":{"address":"10.0.0.2"}}`
	cfg, err := Load(write(t, "config.json", data))
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Control.IntervalSeconds)
	assert.Equal(t, "jsonl", cfg.Logging.Backend)
	assert.False(t, cfg.MQTT.Enabled())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("K_METER__ADDRESS", "10.9.9.9")
	t.Setenv("K_CONTROL__INTERVAL_SECONDS", "15")
	cfg, err := Load(write(t, "config.yaml", sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "10.9.9.9", cfg.Meter.Address)
	assert.Equal(t, 15, cfg.Control.IntervalSeconds)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(write(t, "config.toml", ""))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(write(t, "config.yaml", "meter:\n  address: x\n"))
	assert.ErrorContains(t, err, "batteries")

	carOnly := "batteries:\n  addresses: [a]\nmeter:\n  address: m\ncar:\n  topic: car\n"
	_, err = Load(write(t, "config.yaml", carOnly))
	assert.ErrorContains(t, err, "requires mqtt.broker")

	badTZ := "batteries:\n  addresses: [a]\nmeter:\n  address: m\ncontrol:\n  timezone: Nowhere/Else\n"
	_, err = Load(write(t, "config.yaml", badTZ))
	assert.ErrorContains(t, err, "control")
}
