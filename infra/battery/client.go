// Package battery implements the UDP JSON-RPC protocol spoken by ES home
// batteries.
package battery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/gridbalance/core/device"
	"github.com/kilianp07/gridbalance/core/logger"
	"github.com/kilianp07/gridbalance/core/model"
)

// Client queries and commands batteries over UDP.
type Client struct {
	cfg Config
	log logger.Logger
	// exchanges share one socket address when LocalPort is fixed.
	mu sync.Mutex
}

var _ device.BatteryClient = (*Client)(nil)

// NewClient returns a Client with defaults applied to cfg.
func NewClient(cfg Config, log logger.Logger) *Client {
	cfg.SetDefaults()
	return &Client{cfg: cfg, log: log}
}

// Result pairs a battery address with its status or error.
type Result struct {
	ID     string
	Status device.Status
	Err    error
}

// Status reads the mode and telemetry of one battery, retrying with a
// constant delay.
func (c *Client) Status(ctx context.Context, id string) (device.Status, error) {
	payload, err := json.Marshal(getModeRequest())
	if err != nil {
		return device.Status{}, err
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.retryDelay()), uint64(c.cfg.Retries-1)),
		ctx,
	)
	attempt := 0
	return backoff.RetryNotifyWithData(func() (device.Status, error) {
		attempt++
		pkt, err := c.exchange(ctx, id, payload)
		if err != nil {
			return device.Status{}, err
		}
		return decodeStatus(id, pkt)
	}, bo, func(err error, _ time.Duration) {
		c.log.Warnf("battery %s status attempt %d/%d failed: %v", id, attempt, c.cfg.Retries, err)
	})
}

// StatusAll queries every address concurrently. The result order follows ids.
func (c *Client) StatusAll(ctx context.Context, ids []string) []Result {
	out := make([]Result, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			st, err := c.Status(ctx, id)
			out[i] = Result{ID: id, Status: st, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// SetMode switches a battery to automatic or manual mode. Manual power is
// clamped to the configured maximum. The reply is best effort.
func (c *Client) SetMode(ctx context.Context, id string, cmd device.Command) error {
	payload, err := json.Marshal(setModeRequest(cmd, model.Watts(c.cfg.MaxPower)))
	if err != nil {
		return err
	}
	pkt, err := c.exchange(ctx, id, payload)
	if err != nil {
		return fmt.Errorf("set mode %s: %w", id, err)
	}
	if _, err := decodeResponse(pkt); err != nil {
		return fmt.Errorf("set mode %s: %w", id, err)
	}
	return nil
}

// address appends the default port unless host already names one.
func (c *Client) address(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(c.cfg.Port))
}

// exchange sends payload and waits for the first datagram, resending up to
// cfg.Resends times.
func (c *Client) exchange(ctx context.Context, host string, payload []byte) ([]byte, error) {
	if c.cfg.LocalPort != 0 {
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	raddr, err := net.ResolveUDPAddr("udp4", c.address(host))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("resolve %s: %w", host, err))
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: c.cfg.LocalPort})
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	defer conn.Close()

	buf := make([]byte, 65535)
	for attempt := 0; attempt <= c.cfg.Resends; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, backoff.Permanent(err)
		}
		if _, err := conn.WriteToUDP(payload, raddr); err != nil {
			return nil, fmt.Errorf("send to %s: %w", host, err)
		}
		deadline := time.Now().Add(c.cfg.timeout())
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err == nil {
			pkt := make([]byte, n)
			copy(pkt, buf[:n])
			return pkt, nil
		}
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("read from %s: %w", host, err)
		}
		c.log.Debugf("no reply from %s, resend %d/%d", host, attempt+1, c.cfg.Resends)
	}
	return nil, fmt.Errorf("%s: %w", host, device.ErrNoReply)
}
