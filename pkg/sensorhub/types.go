package sensorhub

import (
	"github.com/ghalamif/sensorhub/internal/adapters/export"
	"github.com/ghalamif/sensorhub/internal/app/session"
	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

type (
	// Snapshot is an immutable view of channels, history and connection state.
	Snapshot        = domain.Snapshot
	Channel         = domain.Channel
	ChannelMeta     = domain.ChannelMeta
	ChannelStatus   = domain.Status
	ConnectionState = domain.ConnectionState
	// Reading is one accepted sample with its sequence id.
	Reading       = domain.Reading
	SessionRecord = domain.SessionRecord

	// Transport opens connections to a device. Implement it to plug in a
	// protocol that is not built in.
	Transport      = ports.Transport
	Connection     = ports.Connection
	TransportEvent = ports.TransportEvent
	TransportError = ports.TransportError

	SessionSink   = ports.SessionSink
	SessionSpool  = ports.SessionSpool
	Publisher     = ports.Publisher
	Observability = ports.Observability
	Field         = ports.Field
)

var (
	ErrNoData            = export.ErrNoData
	ErrConnectInProgress = session.ErrConnectInProgress
	ErrConnectAborted    = session.ErrConnectAborted
)
