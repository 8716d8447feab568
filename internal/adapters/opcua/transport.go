package opcua

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

// Config captures the runtime details required to open an OPC UA session.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	DeviceName       string        `yaml:"device_name"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	ApplicationName  string        `yaml:"application_name"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	Nodes            []NodeConfig  `yaml:"nodes"`
}

// NodeConfig maps a monitored node onto a channel.
type NodeConfig struct {
	NodeID    string `yaml:"node_id"`
	ChannelID string `yaml:"channel_id"`
	Name      string `yaml:"name"`
	Unit      string `yaml:"unit"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "sensorhub"
	}
	if c.DeviceName == "" {
		c.DeviceName = "OPC UA " + c.Endpoint
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 250 * time.Millisecond
	}
	if c.SamplingInterval < 0 {
		c.SamplingInterval = 0
	}
	for i := range c.Nodes {
		if c.Nodes[i].ChannelID == "" {
			c.Nodes[i].ChannelID = c.Nodes[i].NodeID
		}
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if seen[n.ChannelID] {
			return fmt.Errorf("duplicate channel id %q", n.ChannelID)
		}
		seen[n.ChannelID] = true
	}
	return nil
}

// Transport subscribes to data changes of the configured nodes. Every change
// becomes a data event carrying the node's channel id and the value as text.
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

func (t *Transport) Name() string { return "opcua" }

func (t *Transport) Connect(ctx context.Context) (ports.Connection, error) {
	client, err := opcua.NewClient(t.cfg.Endpoint, t.buildClientOptions()...)
	if err != nil {
		return nil, ports.NewTransportError(ports.OtherFailure, fmt.Errorf("opcua new client: %w", err))
	}
	if err := client.Connect(ctx); err != nil {
		return nil, classify(ctx, fmt.Errorf("opcua connect: %w", err))
	}

	notifyCh := make(chan *opcua.PublishNotificationData, len(t.cfg.Nodes)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: t.cfg.PublishInterval,
	}, notifyCh)
	if err != nil {
		_ = client.Close(ctx)
		return nil, classify(ctx, fmt.Errorf("opcua subscribe: %w", err))
	}

	handles := make(map[uint32]NodeConfig, len(t.cfg.Nodes))
	for i, node := range t.cfg.Nodes {
		if err := t.monitor(ctx, sub, uint32(i+1), node); err != nil {
			_ = sub.Cancel(ctx)
			_ = client.Close(ctx)
			return nil, classify(ctx, err)
		}
		handles[uint32(i+1)] = node
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &connection{
		name:    t.cfg.DeviceName,
		nodes:   t.cfg.Nodes,
		client:  client,
		sub:     sub,
		handles: handles,
		events:  make(chan ports.TransportEvent, 64),
		cancel:  cancel,
	}
	c.wg.Add(1)
	go c.consume(runCtx, notifyCh)
	return c, nil
}

func (t *Transport) monitor(ctx context.Context, sub *opcua.Subscription, handle uint32, node NodeConfig) error {
	nodeID, err := ua.ParseNodeID(node.NodeID)
	if err != nil {
		return fmt.Errorf("parse node id %q: %w", node.NodeID, err)
	}
	req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
	if t.cfg.SamplingInterval > 0 {
		req.RequestedParameters.SamplingInterval = float64(t.cfg.SamplingInterval / time.Millisecond)
	}
	res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
	if err != nil {
		return fmt.Errorf("monitor node %q: %w", node.NodeID, err)
	}
	if len(res.Results) == 0 {
		return fmt.Errorf("monitor node %q failed: empty result", node.NodeID)
	}
	if code := res.Results[0].StatusCode; code != ua.StatusOK {
		return fmt.Errorf("monitor node %q failed: %w", node.NodeID, code)
	}
	return nil
}

func (t *Transport) buildClientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(t.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(t.cfg.SecurityPolicy)),
		opcua.ApplicationName(t.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if t.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(t.cfg.Username, t.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

type connection struct {
	name    string
	nodes   []NodeConfig
	client  *opcua.Client
	sub     *opcua.Subscription
	handles map[uint32]NodeConfig
	events  chan ports.TransportEvent
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	once sync.Once
	err  error
}

func (c *connection) DeviceName() string { return c.name }

func (c *connection) Channels() []domain.ChannelMeta {
	out := make([]domain.ChannelMeta, len(c.nodes))
	for i, n := range c.nodes {
		out[i] = domain.ChannelMeta{ID: n.ChannelID, Name: n.Name, Unit: n.Unit}
	}
	return out
}

func (c *connection) Events() <-chan ports.TransportEvent { return c.events }

func (c *connection) Disconnect() error {
	c.once.Do(func() {
		c.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if e := c.sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			c.err = errors.Join(c.err, e)
		}
		if e := c.client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
			c.err = errors.Join(c.err, e)
		}
		c.wg.Wait()
	})
	return c.err
}

func (c *connection) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				c.emit(ctx, ports.TransportEvent{Kind: ports.EventError, Err: notif.Error})
				continue
			}
			for _, ev := range dataEvents(c.handles, notif.Value) {
				c.emit(ctx, ev)
			}
		}
	}
}

func (c *connection) emit(ctx context.Context, ev ports.TransportEvent) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// dataEvents converts a data change notification. Values of unsupported
// types are reported as error events so the reason shows up in the session.
func dataEvents(handles map[uint32]NodeConfig, val interface{}) []ports.TransportEvent {
	data, ok := val.(*ua.DataChangeNotification)
	if !ok {
		return nil
	}
	var out []ports.TransportEvent
	for _, item := range data.MonitoredItems {
		node, ok := handles[item.ClientHandle]
		if !ok || item.Value == nil {
			continue
		}
		fv, ok := variantToFloat(item.Value.Value)
		if !ok {
			var raw interface{}
			if item.Value.Value != nil {
				raw = item.Value.Value.Value()
			}
			out = append(out, ports.TransportEvent{
				Kind:        ports.EventError,
				ChannelHint: node.ChannelID,
				Err:         fmt.Errorf("node %s: unsupported value type %T", node.NodeID, raw),
			})
			continue
		}
		out = append(out, ports.TransportEvent{
			Kind:        ports.EventData,
			ChannelHint: node.ChannelID,
			Payload:     []byte(strconv.FormatFloat(fv, 'f', -1, 64)),
		})
	}
	return out
}

// classify maps connect failures onto transport error kinds.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return ports.NewTransportError(ports.Cancelled, err)
	}
	var code ua.StatusCode
	if errors.As(err, &code) {
		switch code {
		case ua.StatusBadUserAccessDenied,
			ua.StatusBadIdentityTokenRejected,
			ua.StatusBadIdentityTokenInvalid,
			ua.StatusBadSecurityChecksFailed,
			ua.StatusBadNotReadable:
			return ports.NewTransportError(ports.PermissionDenied, err)
		case ua.StatusBadNodeIDUnknown, ua.StatusBadNodeIDInvalid:
			return ports.NewTransportError(ports.NotFound, err)
		}
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return ports.NewTransportError(ports.NotFound, err)
	}
	return ports.NewTransportError(ports.OtherFailure, err)
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var (
	_ ports.Transport  = (*Transport)(nil)
	_ ports.Connection = (*connection)(nil)
)
