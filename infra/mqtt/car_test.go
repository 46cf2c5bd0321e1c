package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridbalance/core/events"
	"github.com/kilianp07/gridbalance/internal/eventbus"
)

func TestParseConnected(t *testing.T) {
	cases := map[string]bool{
		"true":                true,
		" ON ":                true,
		"1":                   true,
		"false":               false,
		"off":                 false,
		"0":                   false,
		`{"connected":true}`:  true,
		`{"connected":false}`: false,
	}
	for in, want := range cases {
		got, err := ParseConnected([]byte(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"maybe", `{"state":"on"}`, ""} {
		_, err := ParseConnected([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestCarSensorTracksTopic(t *testing.T) {
	mc := newMock()
	defer installMock(mc)()
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883"}, nil)
	require.NoError(t, err)

	bus := eventbus.New()
	defer bus.Close()
	sub := bus.Subscribe()

	s, err := NewCarSensor(cli, "home/car/connected", 1, bus, nil)
	require.NoError(t, err)
	assert.False(t, s.CarState().IsCarConnected)
	assert.Equal(t, byte(1), mc.subscribed["home/car/connected"])

	mc.deliver("home/car/connected", "on")
	assert.True(t, s.CarState().IsCarConnected)

	select {
	case ev := <-sub:
		ce, ok := ev.(events.CarEvent)
		require.True(t, ok)
		assert.True(t, ce.Connected)
	case <-time.After(time.Second):
		t.Fatal("no car event")
	}

	// unchanged state publishes nothing, garbage is ignored
	mc.deliver("home/car/connected", "true")
	mc.deliver("home/car/connected", "garbage")
	assert.True(t, s.CarState().IsCarConnected)
	select {
	case ev := <-sub:
		t.Fatalf("unexpected event %v", ev)
	default:
	}

	mc.deliver("home/car/connected", `{"connected":false}`)
	assert.False(t, s.CarState().IsCarConnected)
}

func TestCarSensorRequiresTopic(t *testing.T) {
	_, err := NewCarSensor(nil, "", 0, nil, nil)
	assert.Error(t, err)
}
