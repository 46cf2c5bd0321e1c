// Package p1 reads the grid power from a HomeWizard P1 meter.
package p1

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kilianp07/gridbalance/core/device"
	"github.com/kilianp07/gridbalance/core/logger"
)

// Config holds the meter connection parameters.
type Config struct {
	Address      string `json:"address"`
	Port         int    `json:"port"`
	TimeoutMS    int    `json:"timeout_ms"`
	Retries      int    `json:"retries"`
	RetryDelayMS int    `json:"retry_delay_ms"`
}

// SetDefaults applies the HomeWizard defaults.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = 80
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 5000
	}
	if c.Retries == 0 {
		c.Retries = 1
	}
	if c.RetryDelayMS == 0 {
		c.RetryDelayMS = 500
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("meter address is required")
	}
	return nil
}

// URL returns the data endpoint. Address may be a bare host or a base URL.
func (c Config) URL() string {
	if strings.HasPrefix(c.Address, "http://") || strings.HasPrefix(c.Address, "https://") {
		return strings.TrimRight(c.Address, "/") + "/api/v1/data"
	}
	return "http://" + net.JoinHostPort(c.Address, strconv.Itoa(c.Port)) + "/api/v1/data"
}

// Client implements device.Meter.
type Client struct {
	cfg  Config
	http *http.Client
	log  logger.Logger
}

var _ device.Meter = (*Client)(nil)

// NewClient returns a Client with defaults applied to cfg.
func NewClient(cfg Config, log logger.Logger) *Client {
	cfg.SetDefaults()
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		log:  log,
	}
}

type reading struct {
	ActivePowerW *float64 `json:"active_power_w"`
}

// GridPower returns active_power_w. Transport failures are retried, a
// reading without the field is not.
func (c *Client) GridPower(ctx context.Context) (float64, error) {
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Duration(c.cfg.RetryDelayMS)*time.Millisecond), uint64(c.cfg.Retries)),
		ctx,
	)
	return backoff.RetryNotifyWithData(func() (float64, error) {
		return c.read(ctx)
	}, bo, func(err error, d time.Duration) {
		c.log.Warnf("p1 read failed, retrying in %s: %v", d, err)
	})
}

func (c *Client) read(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL(), nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("p1 request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("p1 status %d", resp.StatusCode)
	}
	var r reading
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("%w: %v", device.ErrInvalidReply, err))
	}
	if r.ActivePowerW == nil {
		return 0, backoff.Permanent(fmt.Errorf("active_power_w: %w", device.ErrMissingField))
	}
	return *r.ActivePowerW, nil
}
