// Package mqtt receives sensor payloads from an MQTT broker. Each message is
// one data event; a lost broker connection ends the session.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

type Config struct {
	BrokerURL  string `yaml:"broker_url"`
	ClientID   string `yaml:"client_id"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Topic      string `yaml:"topic"`
	QoS        byte   `yaml:"qos"`
	DeviceName string `yaml:"device_name"`

	// ChannelFromTopic uses the last topic level as the channel hint, so
	// "lab/node1/temp" feeds channel "temp". Otherwise Channel is used.
	ChannelFromTopic bool                 `yaml:"channel_from_topic"`
	Channel          string               `yaml:"channel"`
	Channels         []domain.ChannelMeta `yaml:"channels"`

	KeepAlive      time.Duration `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "sensorhub"
	}
	if c.DeviceName == "" {
		c.DeviceName = "MQTT " + c.BrokerURL
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker_url is required")
	}
	if c.Topic == "" {
		return errors.New("topic is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}

type Transport struct {
	cfg Config
}

func New(cfg Config) (*Transport, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Transport{cfg: cfg}, nil
}

func (t *Transport) Name() string { return "mqtt" }

func (t *Transport) Connect(ctx context.Context) (ports.Connection, error) {
	c := &connection{
		cfg:    t.cfg,
		events: make(chan ports.TransportEvent, 256),
		done:   make(chan struct{}),
	}

	opts := paho.NewClientOptions().
		AddBroker(t.cfg.BrokerURL).
		SetClientID(t.cfg.ClientID).
		SetOrderMatters(true).
		SetCleanSession(true).
		SetKeepAlive(t.cfg.KeepAlive).
		SetPingTimeout(10 * time.Second).
		SetConnectTimeout(t.cfg.ConnectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false)
	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
	}
	if t.cfg.Password != "" {
		opts.SetPassword(t.cfg.Password)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		c.emit(ports.TransportEvent{Kind: ports.EventError, Err: err})
		c.emit(ports.TransportEvent{Kind: ports.EventDisconnected, Err: err})
	}

	c.client = paho.NewClient(opts)
	if err := wait(ctx, c.client.Connect()); err != nil {
		c.client.Disconnect(0)
		return nil, classify(ctx, fmt.Errorf("mqtt connect: %w", err))
	}
	if err := wait(ctx, c.client.Subscribe(t.cfg.Topic, t.cfg.QoS, c.onMessage)); err != nil {
		c.client.Disconnect(250)
		return nil, classify(ctx, fmt.Errorf("mqtt subscribe %q: %w", t.cfg.Topic, err))
	}
	return c, nil
}

func wait(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

type connection struct {
	cfg    Config
	client paho.Client
	events chan ports.TransportEvent
	done   chan struct{}
	once   sync.Once
}

func (c *connection) DeviceName() string { return c.cfg.DeviceName }

func (c *connection) Channels() []domain.ChannelMeta {
	return append([]domain.ChannelMeta(nil), c.cfg.Channels...)
}

func (c *connection) Events() <-chan ports.TransportEvent { return c.events }

func (c *connection) Disconnect() error {
	c.once.Do(func() {
		close(c.done)
		if c.client.IsConnected() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = wait(ctx, c.client.Unsubscribe(c.cfg.Topic))
			cancel()
		}
		c.client.Disconnect(250)
	})
	return nil
}

func (c *connection) onMessage(_ paho.Client, msg paho.Message) {
	payload := append([]byte(nil), msg.Payload()...)
	c.emit(ports.TransportEvent{
		Kind:        ports.EventData,
		ChannelHint: ChannelHint(c.cfg, msg.Topic()),
		Payload:     payload,
	})
}

func (c *connection) emit(ev ports.TransportEvent) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// ChannelHint resolves the channel hint for a message topic.
func ChannelHint(cfg Config, topic string) string {
	if !cfg.ChannelFromTopic {
		return cfg.Channel
	}
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

func classify(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return ports.NewTransportError(ports.Cancelled, err)
	case errors.Is(err, packets.ErrorRefusedNotAuthorised),
		errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword):
		return ports.NewTransportError(ports.PermissionDenied, err)
	case errors.Is(err, packets.ErrorNetworkError):
		return ports.NewTransportError(ports.NotFound, err)
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return ports.NewTransportError(ports.NotFound, err)
	}
	return ports.NewTransportError(ports.OtherFailure, err)
}

var (
	_ ports.Transport  = (*Transport)(nil)
	_ ports.Connection = (*connection)(nil)
)
