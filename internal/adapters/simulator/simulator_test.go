package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

func fixed(vals ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := vals[i%len(vals)]
		i++
		return v
	}
}

func TestSample(t *testing.T) {
	temp := DefaultChannels()[0]
	require.InDelta(t, 25.0, Sample(temp, fixed(0.5, 0.99)), 1e-9)
	require.Equal(t, 9999.0, Sample(temp, fixed(0.5, 0.01)))

	accel := DefaultChannels()[2]
	require.InDelta(t, -0.5, Sample(accel, fixed(0)), 1e-9)
}

func TestConnectHonoursCancellation(t *testing.T) {
	tr := New(Config{Warmup: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Connect(ctx)
	require.Error(t, err)
	require.Equal(t, ports.Cancelled, ports.TransportErrorKindOf(err))
	require.True(t, errors.Is(err, context.Canceled))
}

func TestConnectionEmitsDataPerChannel(t *testing.T) {
	tr := New(Config{Channels: []ChannelConfig{
		{Meta: domain.ChannelMeta{ID: "a", Name: "A", Unit: "u"}, Interval: time.Millisecond, Min: 1, Max: 2},
	}}, WithRand(fixed(0.5)), WithDeviceName("Bench"))

	conn, err := tr.Connect(context.Background())
	require.NoError(t, err)
	defer conn.Disconnect()

	require.Equal(t, "Bench", conn.DeviceName())
	require.Equal(t, []domain.ChannelMeta{{ID: "a", Name: "A", Unit: "u"}}, conn.Channels())

	select {
	case ev := <-conn.Events():
		require.Equal(t, ports.EventData, ev.Kind)
		require.Equal(t, "a", ev.ChannelHint)
		require.Equal(t, "1.5", string(ev.Payload))
	case <-time.After(time.Second):
		t.Fatal("no data event")
	}
}

func TestDropoutEmitsChannelLostOnce(t *testing.T) {
	tr := New(Config{Channels: []ChannelConfig{
		{Meta: domain.ChannelMeta{ID: "hum"}, Interval: time.Millisecond, Min: 40, Max: 50, DropoutAfter: 5 * time.Millisecond},
	}})
	conn, err := tr.Connect(context.Background())
	require.NoError(t, err)
	defer conn.Disconnect()

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-conn.Events():
			if ev.Kind == ports.EventChannelLost {
				require.Equal(t, "hum", ev.ChannelHint)
				select {
				case extra := <-conn.Events():
					t.Fatalf("event after channel loss: %v", extra.Kind)
				case <-time.After(20 * time.Millisecond):
				}
				return
			}
		case <-deadline:
			t.Fatal("channel was never lost")
		}
	}
}

func TestDisconnectStopsTimersAndIsIdempotent(t *testing.T) {
	tr := New(Config{Channels: []ChannelConfig{
		{Meta: domain.ChannelMeta{ID: "a"}, Interval: time.Millisecond, Min: 0, Max: 1},
	}})
	conn, err := tr.Connect(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.Disconnect())
	require.NoError(t, conn.Disconnect())

	// drain what was buffered before the stop
	for len(conn.Events()) > 0 {
		<-conn.Events()
	}
	select {
	case <-conn.Events():
		t.Fatal("timer still running after disconnect")
	case <-time.After(10 * time.Millisecond):
	}
}
