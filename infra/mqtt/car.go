package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/gridbalance/core/events"
	"github.com/kilianp07/gridbalance/core/model"
	"github.com/kilianp07/gridbalance/infra/logger"
	"github.com/kilianp07/gridbalance/internal/eventbus"
)

// CarSensor tracks the charger connection from a retained MQTT topic.
type CarSensor struct {
	topic     string
	connected atomic.Bool
	bus       eventbus.EventBus
	logger    logger.Logger
	now       func() time.Time
}

// NewCarSensor subscribes to topic on client. State changes are published on
// bus when it is non-nil. The car is reported disconnected until the first message.
func NewCarSensor(client *PahoClient, topic string, qos byte, bus eventbus.EventBus, log logger.Logger) (*CarSensor, error) {
	if topic == "" {
		return nil, fmt.Errorf("car topic is required")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	s := &CarSensor{topic: topic, bus: bus, logger: log, now: time.Now}
	if err := client.Subscribe(topic, qos, s.onMessage); err != nil {
		return nil, err
	}
	return s, nil
}

// CarState implements device.CarSensor.
func (s *CarSensor) CarState() model.CarState {
	return model.CarState{IsCarConnected: s.connected.Load()}
}

func (s *CarSensor) onMessage(_ paho.Client, msg paho.Message) {
	connected, err := ParseConnected(msg.Payload())
	if err != nil {
		s.logger.Warnf("car topic %s: %v", s.topic, err)
		return
	}
	if s.connected.Swap(connected) == connected {
		return
	}
	s.logger.Infof("car connected=%t", connected)
	if s.bus != nil {
		s.bus.Publish(events.CarEvent{Connected: connected, Time: s.now()})
	}
}

// ParseConnected accepts true/false, on/off, 1/0 or {"connected":bool}.
func ParseConnected(payload []byte) (bool, error) {
	raw := strings.ToLower(strings.TrimSpace(string(payload)))
	switch raw {
	case "true", "on", "1", "connected":
		return true, nil
	case "false", "off", "0", "disconnected":
		return false, nil
	}
	var m struct {
		Connected *bool `json:"connected"`
	}
	if err := json.Unmarshal(payload, &m); err != nil {
		return false, fmt.Errorf("unrecognized payload %q", raw)
	}
	if m.Connected == nil {
		return false, fmt.Errorf("payload has no connected field")
	}
	return *m.Connected, nil
}
