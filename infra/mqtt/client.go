// Package mqtt publishes control decisions to an MQTT broker and listens for
// the EV charger connection state.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"

	coremon "github.com/kilianp07/gridbalance/core/monitoring"
	"github.com/kilianp07/gridbalance/infra/logger"
)

const (
	defaultBaseTopic  = "gridbalance"
	payloadOnline     = "online"
	payloadOffline    = "offline"
	defaultMaxRetries = 3
	defaultBackoff    = 100 * time.Millisecond
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string `json:"broker"`
	ClientID   string `json:"client_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	BaseTopic  string `json:"base_topic"`
	UseTLS     bool   `json:"use_tls"`
	ClientCert string `json:"client_cert"`
	ClientKey  string `json:"client_key"`
	CABundle   string `json:"ca_bundle"`
	AuthMethod string `json:"auth_method"`
	// QoS per message kind: "decision", "state", "car".
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	MaxRetries int             `json:"max_retries"`
	BackoffMS  int             `json:"backoff_ms"`
	TLSConfig  *tls.Config     `json:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.BaseTopic == "" {
		c.BaseTopic = defaultBaseTopic
	}
	c.BaseTopic = strings.TrimSuffix(c.BaseTopic, "/")
	if c.ClientID == "" {
		c.ClientID = "gridbalance"
	}
	if c.LWTTopic == "" {
		c.LWTTopic = c.BaseTopic + "/status"
		c.LWTPayload = payloadOffline
		c.LWTRetain = true
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.UseTLS && c.TLSConfig == nil && (c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "") {
		return fmt.Errorf("tls requires client_cert, client_key and ca_bundle")
	}
	switch c.AuthMethod {
	case "", "username_password", "certificate", "both":
	default:
		return fmt.Errorf("unknown auth_method %s", c.AuthMethod)
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient publishes retained JSON messages below the configured base topic.
type PahoClient struct {
	cli        pahoClient
	base       string
	qos        map[string]byte
	logger     logger.Logger
	lwtTopic   string
	maxRetries int
	backoff    time.Duration

	mu   sync.Mutex
	subs map[string]subscription
}

type subscription struct {
	qos     byte
	handler paho.MessageHandler
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker.
func NewPahoClient(cfg Config, log logger.Logger) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	pc := &PahoClient{
		base:       cfg.BaseTopic,
		qos:        cfg.QoS,
		logger:     log,
		lwtTopic:   cfg.LWTTopic,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		subs:       make(map[string]subscription),
	}
	if pc.maxRetries <= 0 {
		pc.maxRetries = defaultMaxRetries
	}
	if pc.backoff <= 0 {
		pc.backoff = defaultBackoff
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		pc.onConnect(c)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	pc.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return pc, nil
}

// onConnect announces availability and restores subscriptions after a reconnect.
func (p *PahoClient) onConnect(c pahoClient) {
	if p.lwtTopic != "" {
		c.Publish(p.lwtTopic, 1, true, payloadOnline)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for topic, s := range p.subs {
		if token := c.Subscribe(topic, s.qos, s.handler); token.Wait() && token.Error() != nil {
			p.logger.Errorf("subscribe %s: %v", topic, token.Error())
		}
	}
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// Topic joins parts below the base topic.
func (p *PahoClient) Topic(parts ...string) string {
	return p.base + "/" + strings.Join(parts, "/")
}

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

// PublishJSON marshals v and publishes it retained on topic, retrying with
// exponential backoff. Failures after the last attempt are reported to the monitor.
func (p *PahoClient) PublishJSON(kind, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	if p.cli == nil || !p.cli.IsConnected() {
		return ErrNotConnected
	}
	qos := p.qosFor(kind)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.backoff
	attempt := 0
	err = backoff.RetryNotify(func() error {
		attempt++
		token := p.cli.Publish(topic, qos, true, payload)
		token.Wait()
		return token.Error()
	}, backoff.WithMaxRetries(bo, uint64(p.maxRetries)), func(err error, _ time.Duration) {
		p.logger.Errorf("publish attempt %d on %s failed: %v", attempt, topic, err)
	})
	if err != nil {
		coremon.CaptureException(err, map[string]string{"module": "mqtt", "topic": topic})
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.Debugw("published", map[string]any{"topic": topic, "kind": kind})
	return nil
}

// Subscribe registers handler for topic. The subscription is restored on reconnect.
func (p *PahoClient) Subscribe(topic string, qos byte, handler paho.MessageHandler) error {
	p.mu.Lock()
	p.subs[topic] = subscription{qos: qos, handler: handler}
	p.mu.Unlock()
	if p.cli == nil || !p.cli.IsConnected() {
		return ErrNotConnected
	}
	token := p.cli.Subscribe(topic, qos, handler)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Disconnect marks the service offline and closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		if p.lwtTopic != "" {
			p.cli.Publish(p.lwtTopic, 1, true, payloadOffline).Wait()
		}
		p.cli.Disconnect(250)
	}
}
