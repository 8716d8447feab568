package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghalamif/sensorhub/internal/domain"
)

// TransportErrorKind classifies connection failures.
type TransportErrorKind string

const (
	PermissionDenied TransportErrorKind = "permission-denied"
	NotFound         TransportErrorKind = "not-found"
	Cancelled        TransportErrorKind = "cancelled"
	OtherFailure     TransportErrorKind = "other"
)

// TransportError is returned by Transport.Connect.
type TransportError struct {
	Kind TransportErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err with a kind.
func NewTransportError(kind TransportErrorKind, err error) *TransportError {
	return &TransportError{Kind: kind, Err: err}
}

// TransportErrorKindOf extracts the kind of err, treating unknown errors as
// OtherFailure and context cancellation as Cancelled.
func TransportErrorKindOf(err error) TransportErrorKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	return OtherFailure
}

type TransportEventKind int

const (
	EventData TransportEventKind = iota
	EventDisconnected
	EventError
	// EventChannelLost declares a channel permanently gone for the session.
	EventChannelLost
)

func (k TransportEventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventChannelLost:
		return "channel-lost"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

type TransportEvent struct {
	Kind        TransportEventKind
	ChannelHint string
	Payload     []byte
	Err         error
}

// Transport opens connections to a sensor device.
type Transport interface {
	Connect(ctx context.Context) (Connection, error)
	Name() string
}

// Connection is an established link producing events until Disconnect is
// called or the remote side goes away.
type Connection interface {
	DeviceName() string
	Channels() []domain.ChannelMeta
	Events() <-chan TransportEvent
	// Disconnect is best effort and safe to call more than once.
	Disconnect() error
}
