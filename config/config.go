// Package config loads the service configuration from a YAML or JSON file
// with environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/gridbalance/core/dispatch"
	"github.com/kilianp07/gridbalance/core/dispatch/logging"
	"github.com/kilianp07/gridbalance/core/metrics"
	"github.com/kilianp07/gridbalance/core/policy"
	"github.com/kilianp07/gridbalance/infra/battery"
	"github.com/kilianp07/gridbalance/infra/monitoring"
	"github.com/kilianp07/gridbalance/infra/mqtt"
	"github.com/kilianp07/gridbalance/infra/p1"
)

type Config struct {
	Batteries battery.Config    `json:"batteries"`
	Meter     p1.Config         `json:"meter"`
	MQTT      mqtt.Config       `json:"mqtt"`
	Car       CarConfig         `json:"car"`
	Control   dispatch.Config   `json:"control"`
	Policy    policy.Thresholds `json:"policy"`
	Metrics   metrics.Config    `json:"metrics"`
	Logging   logging.Config    `json:"logging"`
	HTTP      HTTPConfig        `json:"http"`
	Sentry    monitoring.Config `json:"sentry"`
}

// CarConfig selects where the charger connection state comes from.
type CarConfig struct {
	// Topic is the MQTT topic carrying the connection state. Requires mqtt.broker.
	Topic string `json:"topic"`
	QoS   byte   `json:"qos"`
	// Connected is the fixed state used when no topic is configured.
	Connected bool `json:"connected"`
}

// HTTPConfig configures the status API.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// Token protects the decision log endpoint. Empty disables the check.
	Token string `json:"token"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides, K_SECTION__KEY. The provider splits on "__".
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), "k_")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Batteries.SetDefaults()
	c.Meter.SetDefaults()
	c.MQTT.SetDefaults()
	c.Control.SetDefaults()
	c.Policy.SetDefaults()
	c.Logging.SetDefaults()
	c.HTTP.SetDefaults()
}

// Validate checks every section and their cross references.
func (c Config) Validate() error {
	if err := c.Batteries.Validate(); err != nil {
		return fmt.Errorf("batteries: %w", err)
	}
	if err := c.Meter.Validate(); err != nil {
		return fmt.Errorf("meter: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if c.Car.Topic != "" && !c.MQTT.Enabled() {
		return fmt.Errorf("car: topic %q requires mqtt.broker", c.Car.Topic)
	}
	if err := c.Control.Validate(); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
