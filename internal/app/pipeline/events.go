package pipeline

import (
	"context"

	"github.com/ghalamif/sensorhub/internal/ports"
)

// EventHandler reacts to transport events other than data.
type EventHandler interface {
	OnRemoteDisconnect()
	OnTransportError(err error)
	OnChannelLost(channelID string)
}

// RunEventPump feeds data events from a connection into the ingestor and
// forwards lifecycle events to h. It returns when ctx is cancelled, when the
// event channel is closed, or after a disconnected event.
func RunEventPump(ctx context.Context, events <-chan ports.TransportEvent, in *Ingestor, h EventHandler, obs ports.Observability) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				h.OnRemoteDisconnect()
				return
			}
			switch ev.Kind {
			case ports.EventData:
				// Rejected payloads are already logged and counted by Ingest.
				_, _ = in.Ingest(ev.ChannelHint, ev.Payload)
			case ports.EventChannelLost:
				h.OnChannelLost(ev.ChannelHint)
			case ports.EventError:
				obs.LogError("transport_error", ev.Err)
				h.OnTransportError(ev.Err)
			case ports.EventDisconnected:
				h.OnRemoteDisconnect()
				return
			default:
				obs.LogWarn("transport_event_unknown", nil, ports.Field{Key: "kind", Value: ev.Kind.String()})
			}
		}
	}
}
