// Package simulator is a transport driven by local timers. It stands in for a
// live device in demo mode and after a permission failure.
package simulator

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

const (
	DeviceName    = "Simulation Node"
	DefaultWarmup = 800 * time.Millisecond
)

// ChannelConfig describes one simulated parameter stream. Values are drawn
// uniformly from [Min, Max).
type ChannelConfig struct {
	Meta     domain.ChannelMeta `yaml:",inline"`
	Interval time.Duration      `yaml:"interval"`
	Min      float64            `yaml:"min"`
	Max      float64            `yaml:"max"`

	// SpikeProbability replaces a sample with SpikeValue.
	SpikeProbability float64 `yaml:"spike_probability"`
	SpikeValue       float64 `yaml:"spike_value"`

	// DropoutAfter, when set, ends the stream after that much session time
	// and reports the channel as lost.
	DropoutAfter time.Duration `yaml:"dropout_after"`
}

type Config struct {
	Warmup   time.Duration   `yaml:"warmup"`
	Channels []ChannelConfig `yaml:"channels"`
}

// DefaultChannels mirrors the demo device: a temperature probe with rare
// spikes, a humidity sensor that drops out after a minute and a fast
// accelerometer.
func DefaultChannels() []ChannelConfig {
	return []ChannelConfig{
		{
			Meta:             domain.ChannelMeta{ID: "temp", Name: "Temperature", Unit: "°C"},
			Interval:         2 * time.Second,
			Min:              24,
			Max:              26,
			SpikeProbability: 0.05,
			SpikeValue:       9999,
		},
		{
			Meta:         domain.ChannelMeta{ID: "hum", Name: "Humidity", Unit: "%"},
			Interval:     5 * time.Second,
			Min:          40,
			Max:          50,
			DropoutAfter: time.Minute,
		},
		{
			Meta:     domain.ChannelMeta{ID: "accel", Name: "Accelerometer", Unit: "g"},
			Interval: 50 * time.Millisecond,
			Min:      -0.5,
			Max:      0.5,
		},
	}
}

type Option func(*Transport)

// WithRand replaces the random source; fn must return values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(t *Transport) {
		if fn != nil {
			t.rnd = fn
		}
	}
}

func WithDeviceName(name string) Option {
	return func(t *Transport) {
		if name != "" {
			t.name = name
		}
	}
}

type Transport struct {
	cfg  Config
	name string
	rnd  func() float64
}

func New(cfg Config, opts ...Option) *Transport {
	if cfg.Warmup < 0 {
		cfg.Warmup = 0
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = DefaultChannels()
	}
	t := &Transport{cfg: cfg, name: DeviceName}
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	var mu sync.Mutex
	t.rnd = func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return src.Float64()
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Name() string { return "simulation" }

// Connect waits for the warmup delay and starts one timer per channel.
func (t *Transport) Connect(ctx context.Context) (ports.Connection, error) {
	if t.cfg.Warmup > 0 {
		timer := time.NewTimer(t.cfg.Warmup)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ports.NewTransportError(ports.Cancelled, ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, ports.NewTransportError(ports.Cancelled, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &connection{
		name:   t.name,
		cfg:    t.cfg,
		events: make(chan ports.TransportEvent, 256),
		cancel: cancel,
	}
	for _, ch := range t.cfg.Channels {
		if ch.Interval <= 0 {
			continue
		}
		c.wg.Add(1)
		go c.run(runCtx, ch, t.rnd)
	}
	return c, nil
}

type connection struct {
	name   string
	cfg    Config
	events chan ports.TransportEvent
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (c *connection) DeviceName() string { return c.name }

func (c *connection) Channels() []domain.ChannelMeta {
	out := make([]domain.ChannelMeta, 0, len(c.cfg.Channels))
	for _, ch := range c.cfg.Channels {
		out = append(out, ch.Meta)
	}
	return out
}

func (c *connection) Events() <-chan ports.TransportEvent { return c.events }

// Disconnect stops every channel timer and waits for them to exit.
func (c *connection) Disconnect() error {
	c.once.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
	return nil
}

func (c *connection) run(ctx context.Context, ch ChannelConfig, rnd func() float64) {
	defer c.wg.Done()

	started := time.Now()
	ticker := time.NewTicker(ch.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if ch.DropoutAfter > 0 && now.Sub(started) > ch.DropoutAfter {
				c.emit(ctx, ports.TransportEvent{Kind: ports.EventChannelLost, ChannelHint: ch.Meta.ID})
				return
			}
			c.emit(ctx, ports.TransportEvent{
				Kind:        ports.EventData,
				ChannelHint: ch.Meta.ID,
				Payload:     []byte(strconv.FormatFloat(Sample(ch, rnd), 'f', -1, 64)),
			})
		}
	}
}

func (c *connection) emit(ctx context.Context, ev ports.TransportEvent) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// Sample draws one value for ch.
func Sample(ch ChannelConfig, rnd func() float64) float64 {
	v := ch.Min + rnd()*(ch.Max-ch.Min)
	if ch.SpikeProbability > 0 && rnd() < ch.SpikeProbability {
		return ch.SpikeValue
	}
	return v
}

var (
	_ ports.Transport  = (*Transport)(nil)
	_ ports.Connection = (*connection)(nil)
)
