package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/sensorhub/internal/adapters/mqtt"
	"github.com/ghalamif/sensorhub/internal/adapters/opcua"
	"github.com/ghalamif/sensorhub/internal/adapters/simulator"
	"github.com/ghalamif/sensorhub/internal/ports"
)

const (
	TransportSimulation = "simulation"
	TransportMQTT       = "mqtt"
	TransportOPCUA      = "opcua"

	ForwardNone  = "none"
	ForwardNATS  = "nats"
	ForwardKafka = "kafka"
)

type Config struct {
	Policy     ports.Policy     `yaml:"policy"`
	Transport  TransportConfig  `yaml:"transport"`
	Simulation simulator.Config `yaml:"simulation"`
	MQTT       mqtt.Config      `yaml:"mqtt"`
	OPCUA      opcua.Config     `yaml:"opcua"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Spool      SpoolConfig      `yaml:"spool"`
	Forward    ForwardConfig    `yaml:"forward"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	API        APIConfig        `yaml:"api"`
}

type TransportConfig struct {
	Kind string `yaml:"kind"`
	// AutoFallback switches to simulation after a permission failure.
	AutoFallback *bool `yaml:"auto_fallback"`
}

// PostgresConfig enables the session sink when ConnString is set.
type PostgresConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type SpoolConfig struct {
	Dir string `yaml:"dir"`
}

type ForwardConfig struct {
	Kind  string      `yaml:"kind"`
	NATS  NATSConfig  `yaml:"nats"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes YAML, applies environment overrides and defaults, and
// validates the result.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return finish(&cfg)
}

// Default is the configuration used without a config file: simulation only,
// no sink, no forwarding.
func Default() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv honours STALE_THRESHOLD_MS, MONITOR_INTERVAL_MS, HISTORY_CAPACITY
// and VISUALIZATION_WINDOW.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	intEnv := func(name string) (int, bool, error) {
		v, ok := lookup(name)
		if !ok || v == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, false, fmt.Errorf("%s: expected a positive integer, got %q", name, v)
		}
		return n, true, nil
	}

	if n, ok, err := intEnv("STALE_THRESHOLD_MS"); err != nil {
		return err
	} else if ok {
		c.Policy.StaleThreshold = time.Duration(n) * time.Millisecond
	}
	if n, ok, err := intEnv("MONITOR_INTERVAL_MS"); err != nil {
		return err
	} else if ok {
		c.Policy.MonitorInterval = time.Duration(n) * time.Millisecond
	}
	if n, ok, err := intEnv("HISTORY_CAPACITY"); err != nil {
		return err
	} else if ok {
		c.Policy.HistoryCapacity = n
	}
	if n, ok, err := intEnv("VISUALIZATION_WINDOW"); err != nil {
		return err
	} else if ok {
		c.Policy.VisualizationWindow = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Policy.StaleThreshold == 0 {
		c.Policy.StaleThreshold = 10 * time.Second
	}
	if c.Policy.MonitorInterval == 0 {
		c.Policy.MonitorInterval = 2 * time.Second
	}
	if c.Policy.HistoryCapacity == 0 {
		c.Policy.HistoryCapacity = 500
	}
	if c.Policy.VisualizationWindow == 0 {
		c.Policy.VisualizationWindow = 50
	}
	if c.Policy.FallbackDelay == 0 {
		c.Policy.FallbackDelay = 1500 * time.Millisecond
	}
	if c.Transport.AutoFallback != nil {
		c.Policy.AutoFallback = c.Transport.AutoFallback
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 50 * time.Millisecond
	}
	if c.Policy.MaxForwardQueue == 0 {
		c.Policy.MaxForwardQueue = 10_000
	}
	if c.Policy.MaxForwardBatch == 0 {
		c.Policy.MaxForwardBatch = 500
	}

	if c.Transport.Kind == "" {
		c.Transport.Kind = TransportSimulation
	}
	if c.Simulation.Warmup == 0 {
		c.Simulation.Warmup = simulator.DefaultWarmup
	}
	if len(c.Simulation.Channels) == 0 {
		c.Simulation.Channels = simulator.DefaultChannels()
	}

	if c.Postgres.Table == "" {
		c.Postgres.Table = "sensor_sessions"
	}
	if c.Spool.Dir == "" {
		c.Spool.Dir = "./data/spool"
	}
	if c.Forward.Kind == "" {
		c.Forward.Kind = ForwardNone
	}
	if c.Forward.NATS.SubjectPrefix == "" {
		c.Forward.NATS.SubjectPrefix = "sensorhub.readings"
	}
	if c.Forward.Kafka.Topic == "" {
		c.Forward.Kafka.Topic = "sensorhub.readings"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}

	switch c.Transport.Kind {
	case TransportMQTT:
		c.MQTT.ApplyDefaults()
	case TransportOPCUA:
		c.OPCUA.ApplyDefaults()
	}
}

func (c *Config) validate() error {
	if c.Policy.StaleThreshold < 0 || c.Policy.MonitorInterval < 0 {
		return fmt.Errorf("policy: durations must be positive")
	}
	if c.Policy.HistoryCapacity < 0 {
		return fmt.Errorf("policy.history_capacity must be positive")
	}
	if c.Policy.VisualizationWindow < 0 {
		return fmt.Errorf("policy.visualization_window must be positive")
	}

	switch c.Transport.Kind {
	case TransportSimulation:
	case TransportMQTT:
		if err := c.MQTT.Validate(); err != nil {
			return fmt.Errorf("mqtt config: %w", err)
		}
	case TransportOPCUA:
		if err := c.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua config: %w", err)
		}
	default:
		return fmt.Errorf("transport.kind %q: want simulation, mqtt or opcua", c.Transport.Kind)
	}

	for _, ch := range c.Simulation.Channels {
		if ch.Meta.ID == "" {
			return fmt.Errorf("simulation channel without id")
		}
		if ch.Max < ch.Min {
			return fmt.Errorf("simulation channel %q: max below min", ch.Meta.ID)
		}
	}

	switch c.Forward.Kind {
	case ForwardNone:
	case ForwardNATS:
		if c.Forward.NATS.URL == "" {
			return fmt.Errorf("forward.nats.url is required")
		}
	case ForwardKafka:
		if len(c.Forward.Kafka.Brokers) == 0 {
			return fmt.Errorf("forward.kafka.brokers is required")
		}
	default:
		return fmt.Errorf("forward.kind %q: want none, nats or kafka", c.Forward.Kind)
	}

	if c.Spool.Dir == "" {
		return fmt.Errorf("spool.dir is required")
	}
	return nil
}
