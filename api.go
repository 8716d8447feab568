package sensorhub

import (
	"log/slog"
	"time"

	base "github.com/ghalamif/sensorhub/pkg/sensorhub"
)

// Re-exported errors for convenience.
var (
	ErrNoData            = base.ErrNoData
	ErrConnectInProgress = base.ErrConnectInProgress
	ErrConnectAborted    = base.ErrConnectAborted
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

const (
	TransportSimulation = base.TransportSimulation
	TransportMQTT       = base.TransportMQTT
	TransportOPCUA      = base.TransportOPCUA
)

// Type aliases so consumers can import github.com/ghalamif/sensorhub directly.
type (
	Config           = base.Config
	Policy           = base.Policy
	SimulationConfig = base.SimulationConfig
	SimulatedChannel = base.SimulatedChannel
	MQTTConfig       = base.MQTTConfig
	OPCUAConfig      = base.OPCUAConfig
	OPCUANodeConfig  = base.OPCUANodeConfig
	PostgresConfig   = base.PostgresConfig
	ForwardConfig    = base.ForwardConfig
	Runtime          = base.Runtime
	RuntimeOption    = base.RuntimeOption
	Snapshot         = base.Snapshot
	Channel          = base.Channel
	ChannelMeta      = base.ChannelMeta
	ChannelStatus    = base.ChannelStatus
	ConnectionState  = base.ConnectionState
	Reading          = base.Reading
	SessionRecord    = base.SessionRecord
	SessionFunc      = base.SessionFunc
	Transport        = base.Transport
	Connection       = base.Connection
	TransportEvent   = base.TransportEvent
	TransportError   = base.TransportError
	SessionSink      = base.SessionSink
	SessionSpool     = base.SessionSpool
	Publisher        = base.Publisher
	Observability    = base.Observability
	Field            = base.Field
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() (*Config, error) {
	return base.DefaultConfig()
}

// Runtime and options.
func Conf(path string, opts ...RuntimeOption) (*Runtime, error) {
	return base.Conf(path, opts...)
}

func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithTransport(t Transport) RuntimeOption {
	return base.WithTransport(t)
}

func WithSimulation(t Transport) RuntimeOption {
	return base.WithSimulation(t)
}

func WithSink(s SessionSink) RuntimeOption {
	return base.WithSink(s)
}

func WithSpool(s SessionSpool) RuntimeOption {
	return base.WithSpool(s)
}

func WithPublisher(p Publisher) RuntimeOption {
	return base.WithPublisher(p)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithLogger(l *slog.Logger) RuntimeOption {
	return base.WithLogger(l)
}

func WithClock(now func() time.Time) RuntimeOption {
	return base.WithClock(now)
}

// Sink adapters.
func NewCallbackSink(name string, fn SessionFunc) SessionSink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (SessionSink, <-chan *SessionRecord, func()) {
	return base.NewChannelSink(name, buffer)
}
