package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/sensorhub/internal/adapters/observability"
	"github.com/ghalamif/sensorhub/internal/app/store"
	"github.com/ghalamif/sensorhub/internal/ports"
)

type recordingHandler struct {
	disconnects int
	errs        []error
	lost        []string
}

func (h *recordingHandler) OnRemoteDisconnect()        { h.disconnects++ }
func (h *recordingHandler) OnTransportError(err error) { h.errs = append(h.errs, err) }
func (h *recordingHandler) OnChannelLost(id string)    { h.lost = append(h.lost, id) }

func runPump(t *testing.T, events chan ports.TransportEvent, in *Ingestor, h EventHandler) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		RunEventPump(context.Background(), events, in, h, observability.Nop{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event pump did not return")
	}
}

func TestEventPumpRoutesEvents(t *testing.T) {
	st := store.New()
	in := NewIngestor(st, observability.Nop{})
	h := &recordingHandler{}

	boom := errors.New("boom")
	events := make(chan ports.TransportEvent, 8)
	events <- ports.TransportEvent{Kind: ports.EventData, ChannelHint: "temp", Payload: []byte("25.1")}
	events <- ports.TransportEvent{Kind: ports.EventData, ChannelHint: "temp", Payload: []byte("garbage")}
	events <- ports.TransportEvent{Kind: ports.EventChannelLost, ChannelHint: "hum"}
	events <- ports.TransportEvent{Kind: ports.EventError, Err: boom}
	events <- ports.TransportEvent{Kind: ports.EventDisconnected}
	events <- ports.TransportEvent{Kind: ports.EventData, ChannelHint: "temp", Payload: []byte("26")}

	runPump(t, events, in, h)

	require.Equal(t, 1, h.disconnects)
	require.Equal(t, []error{boom}, h.errs)
	require.Equal(t, []string{"hum"}, h.lost)
	require.Equal(t, 1, st.Snapshot().Len(), "events after disconnect are not consumed")
}

func TestEventPumpTreatsClosedChannelAsDisconnect(t *testing.T) {
	h := &recordingHandler{}
	events := make(chan ports.TransportEvent)
	close(events)
	runPump(t, events, NewIngestor(store.New(), observability.Nop{}), h)
	require.Equal(t, 1, h.disconnects)
}

func TestEventPumpStopsOnCancelWithoutDisconnect(t *testing.T) {
	h := &recordingHandler{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	RunEventPump(ctx, make(chan ports.TransportEvent), NewIngestor(store.New(), observability.Nop{}), h, observability.Nop{})
	require.Zero(t, h.disconnects)
}
