package battery

import (
	"fmt"
	"time"
)

// DefaultPort is the UDP port ES batteries listen on.
const DefaultPort = 30000

// Config holds the UDP JSON-RPC settings shared by all batteries.
type Config struct {
	// Addresses lists the battery IPs. The address is the battery identifier.
	Addresses []string `json:"addresses"`
	Port      int      `json:"port"`
	// LocalPort binds the client socket. Some firmwares only answer to the
	// port they listen on themselves; 0 picks an ephemeral port.
	LocalPort    int `json:"local_port"`
	TimeoutMS    int `json:"timeout_ms"`
	Resends      int `json:"resends"`
	Retries      int `json:"retries"`
	RetryDelayMS int `json:"retry_delay_ms"`
	// MaxPower clamps manual setpoints before they are sent.
	MaxPower int `json:"max_power"`
}

// SetDefaults applies the device protocol defaults.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 1500
	}
	if c.Resends == 0 {
		c.Resends = 2
	}
	if c.Retries == 0 {
		c.Retries = 3
	}
	if c.RetryDelayMS == 0 {
		c.RetryDelayMS = 1500
	}
	if c.MaxPower == 0 {
		c.MaxPower = 2500
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if len(c.Addresses) == 0 {
		return fmt.Errorf("at least one battery address is required")
	}
	seen := make(map[string]struct{}, len(c.Addresses))
	for _, a := range c.Addresses {
		if a == "" {
			return fmt.Errorf("empty battery address")
		}
		if _, ok := seen[a]; ok {
			return fmt.Errorf("duplicate battery address %s", a)
		}
		seen[a] = struct{}{}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func (c Config) timeout() time.Duration    { return time.Duration(c.TimeoutMS) * time.Millisecond }
func (c Config) retryDelay() time.Duration { return time.Duration(c.RetryDelayMS) * time.Millisecond }
