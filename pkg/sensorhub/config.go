package sensorhub

import (
	"github.com/ghalamif/sensorhub/internal/adapters/mqtt"
	"github.com/ghalamif/sensorhub/internal/adapters/opcua"
	"github.com/ghalamif/sensorhub/internal/adapters/simulator"
	"github.com/ghalamif/sensorhub/internal/app/config"
	"github.com/ghalamif/sensorhub/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy holds staleness, history and forwarding thresholds.
	Policy = ports.Policy
	// SimulationConfig describes the demo device.
	SimulationConfig = simulator.Config
	// SimulatedChannel describes one generated signal.
	SimulatedChannel = simulator.ChannelConfig
	MQTTConfig       = mqtt.Config
	OPCUAConfig      = opcua.Config
	// OPCUANodeConfig maps a monitored node to a channel.
	OPCUANodeConfig = opcua.NodeConfig
	PostgresConfig  = config.PostgresConfig
	ForwardConfig   = config.ForwardConfig
)

const (
	TransportSimulation = config.TransportSimulation
	TransportMQTT       = config.TransportMQTT
	TransportOPCUA      = config.TransportOPCUA
)

// LoadConfig reads YAML from disk, applies environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig is a ready-to-run simulation setup.
func DefaultConfig() (*Config, error) {
	return config.Default()
}
